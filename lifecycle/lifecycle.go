// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package lifecycle - the vault lifecycle coordinator
//
// the only writer to the vault status field; creation and plan
// changes run as payment post-verification handlers inside the verify
// barrier
package lifecycle

import (
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/content"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/invite"
	"github.com/keeper-vault/keeperd/ledger"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/metrics"
	"github.com/keeper-vault/keeperd/payment"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/upload"
	"github.com/keeper-vault/keeperd/vault"
)

var globalData struct {
	sync.Mutex
	log         *logger.L
	initialised bool
}

// Initialise - install the payment purpose handlers
func Initialise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}
	globalData.log = logger.New("lifecycle")
	globalData.log.Info("initialising…")

	payment.Register(payment.InitialVaultCreation, createVaultHandler)
	payment.Register(payment.PlanUpgrade, planUpgradeHandler)

	globalData.initialised = true
	return nil
}

// Finalise - stop background processing
func Finalise() {
	globalData.Lock()
	globalData.initialised = false
	globalData.Unlock()
}

// runs inside the payment verify barrier
func createVaultHandler(session *payment.Session, tx ledger.Transaction) (principal.Principal, error) {
	return CreateVault(session.Payer, session.Purpose.Plan)
}

// runs inside the payment verify barrier
func planUpgradeHandler(session *payment.Session, tx ledger.Transaction) (principal.Principal, error) {
	err := FinalizePlanChange(session.Purpose.VaultID, session.Purpose.Plan)
	if err != nil {
		return nil, err
	}
	return session.Purpose.VaultID, nil
}

// CreateVault - provision a paid vault
//
// persists the record in draft and immediately advances to the setup
// phase; called inside the payment barrier
func CreateVault(owner principal.Principal, plan vault.Plan) (principal.Principal, error) {
	if owner.IsZero() || !plan.Valid() {
		return nil, fault.InvalidInput
	}
	vaultID, err := principal.New(principal.TagVault)
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	cfg := &vault.Config{
		Owner:               owner.Bytes(),
		Plan:                plan,
		Status:              vault.Draft,
		StorageQuota:        plan.Quota(),
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now + constants.VaultTerm,
		StatusChangedAt:     now,
		HeirThreshold:       1,
		LastAccessedByOwner: now,
	}
	if err := cfg.Transition(vault.NeedSetup); err != nil {
		return nil, err
	}
	if err := vault.Store(vaultID, cfg); err != nil {
		return nil, err
	}
	vault.PutApprovals(vaultID, vault.Approvals{})

	metrics.Update(func(m *metrics.Metrics) {
		m.TotalVaults += 1
		m.NeedSetupVaults += 1
	})
	audit.Append(vaultID, audit.VaultCreated, owner)
	return vaultID, nil
}

// Patch - owner-editable vault fields
type Patch struct {
	Name             *string
	Description      *string
	UnlockTime       *uint64
	InactivityDays   *uint32
	HeirThreshold    *uint32
	WitnessThreshold *uint32
	Plan             *vault.Plan
}

// UpdateVault - apply owner edits
//
// a plan change to a higher tier is not applied directly: the call
// returns an open upgrade payment session and the change commits only
// when that session verifies
func UpdateVault(vaultID principal.Principal, patch Patch, caller principal.Principal) (*payment.Info, error) {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return nil, err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return nil, err
	}

	var upgrade *payment.Info
	if nil != patch.Plan && *patch.Plan != cfg.Plan {
		newPlan := *patch.Plan
		if !newPlan.Valid() || newPlan.Price() <= cfg.Plan.Price() {
			return nil, fault.InvalidInput
		}
		amount := Prorate(cfg, newPlan)
		upgrade, err = payment.InitSession(payment.Purpose{
			Kind:    payment.PlanUpgrade,
			Plan:    newPlan,
			VaultID: vaultID,
		}, amount, caller)
		if err != nil {
			return nil, err
		}
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return nil, err
	}
	if nil != patch.Name {
		cfg.Name = *patch.Name
	}
	if nil != patch.Description {
		cfg.Description = *patch.Description
	}
	if nil != patch.UnlockTime {
		cfg.UnlockTime = *patch.UnlockTime
	}
	if nil != patch.InactivityDays {
		cfg.InactivityDays = *patch.InactivityDays
	}
	if nil != patch.HeirThreshold {
		cfg.HeirThreshold = *patch.HeirThreshold
	}
	if nil != patch.WitnessThreshold {
		cfg.WitnessThreshold = *patch.WitnessThreshold
	}
	now := clock.Now()
	cfg.UpdatedAt = now
	cfg.LastAccessedByOwner = now
	if err := vault.Store(vaultID, cfg); err != nil {
		trx.Abort()
		return nil, err
	}
	audit.Append(vaultID, audit.VaultUpdated, caller)
	if err := trx.Commit(); err != nil {
		return nil, err
	}
	return upgrade, nil
}

// Prorate - upgrade charge for the remaining term
//
// amount = floor((A2 − A1) · remaining / term); deterministic floor
func Prorate(cfg *vault.Config, newPlan vault.Plan) uint64 {
	now := clock.Now()
	if now >= cfg.ExpiresAt || cfg.ExpiresAt <= cfg.CreatedAt {
		return 0
	}
	difference := newPlan.Price() - cfg.Plan.Price()
	remaining := cfg.ExpiresAt - now
	term := cfg.ExpiresAt - cfg.CreatedAt
	return difference * remaining / term
}

// FinalizePlanChange - commit a verified plan upgrade
//
// idempotent: a vault already on the target plan is left untouched;
// called inside the payment barrier
func FinalizePlanChange(vaultID principal.Principal, newPlan vault.Plan) error {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if cfg.Plan == newPlan {
		return nil
	}
	if !newPlan.Valid() {
		return fault.InvalidInput
	}
	cfg.Plan = newPlan
	cfg.StorageQuota = newPlan.Quota()
	cfg.UpdatedAt = clock.Now()
	return vault.Store(vaultID, cfg)
}

// SetVaultStatus - apply one lifecycle edge
func SetVaultStatus(vaultID principal.Principal, target vault.Status) error {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	if err := cfg.Transition(target); err != nil {
		trx.Abort()
		return err
	}
	if err := vault.Store(vaultID, cfg); err != nil {
		trx.Abort()
		return err
	}
	return trx.Commit()
}

// CheckUnlock - evaluate the unlock predicates
//
// true when the configured time has been reached or the owner has
// been inactive long enough, and the approvals quorum is met
func CheckUnlock(vaultID principal.Principal) (bool, error) {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return false, err
	}
	now := clock.Now()

	timeReached := 0 != cfg.UnlockTime && now >= cfg.UnlockTime
	inactive := 0 != cfg.InactivityDays &&
		now-cfg.LastAccessedByOwner >= uint64(cfg.InactivityDays)*24*60*60
	if !timeReached && !inactive {
		return false, nil
	}
	return cfg.QuorumMet(vault.GetApprovals(vaultID)), nil
}

// TriggerUnlock - manual unlock with a valid quorum
func TriggerUnlock(vaultID principal.Principal, caller principal.Principal) error {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := guard.OwnerOrHeir(vaultID, cfg, caller); err != nil {
		return err
	}
	if vault.Unlockable == cfg.Status {
		return fault.AlreadyUnlockable
	}
	if !cfg.Status.CanTransition(vault.Unlockable) {
		return fault.InvalidState
	}
	if !cfg.QuorumMet(vault.GetApprovals(vaultID)) {
		return fault.ApprovalQuorumNotMet
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	if err := cfg.Transition(vault.Unlockable); err != nil {
		trx.Abort()
		return err
	}
	if err := vault.Store(vaultID, cfg); err != nil {
		trx.Abort()
		return err
	}
	audit.Append(vaultID, audit.VaultUnlocked, caller)
	return trx.Commit()
}

// RecordApproval - count one member's unlock approval
//
// the caller must be a verified member; each member counts once
func RecordApproval(vaultID principal.Principal, caller principal.Principal) error {
	m, err := guard.Member(vaultID, caller)
	if err != nil {
		return err
	}
	if member.Verified != m.Status {
		return fault.NotAuthorized
	}
	if m.HasApprovedUnlock {
		return nil
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	a := vault.GetApprovals(vaultID)
	switch m.Role {
	case member.Heir:
		a.Heirs += 1
	case member.Witness:
		a.Witnesses += 1
	}
	vault.PutApprovals(vaultID, a)

	m.HasApprovedUnlock = true
	if err := member.Store(vaultID, caller, m); err != nil {
		trx.Abort()
		return err
	}
	audit.Append(vaultID, audit.MemberApprovedUnlock, caller)
	return trx.Commit()
}

// VerifyMember - owner attestation of a claimed member's identity
//
// only verified members may record an unlock approval; verifying an
// already verified member is a no-op
func VerifyMember(vaultID principal.Principal, memberID principal.Principal, caller principal.Principal) error {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return err
	}
	m, err := member.Fetch(vaultID, memberID)
	if err != nil {
		return err
	}
	if member.Verified == m.Status {
		return nil
	}
	if member.Active != m.Status {
		return fault.InvalidState
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	m.Status = member.Verified
	if err := member.Store(vaultID, memberID, m); err != nil {
		trx.Abort()
		return err
	}
	audit.Append(vaultID, audit.MemberVerified, caller)
	return trx.Commit()
}

// RevokeMember - owner removal of a member
//
// the record stays, marked revoked, so its share index becomes free;
// an approval already counted is withdrawn
func RevokeMember(vaultID principal.Principal, memberID principal.Principal, caller principal.Principal) error {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return err
	}
	m, err := member.Fetch(vaultID, memberID)
	if err != nil {
		return err
	}
	if member.Revoked == m.Status {
		return fault.InvalidState
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	if m.HasApprovedUnlock {
		a := vault.GetApprovals(vaultID)
		switch m.Role {
		case member.Heir:
			if a.Heirs > 0 {
				a.Heirs -= 1
			}
		case member.Witness:
			if a.Witnesses > 0 {
				a.Witnesses -= 1
			}
		}
		vault.PutApprovals(vaultID, a)
	}
	m.Status = member.Revoked
	m.HasApprovedUnlock = false
	if err := member.Store(vaultID, memberID, m); err != nil {
		trx.Abort()
		return err
	}
	audit.Append(vaultID, audit.MemberRemoved, caller)
	return trx.Commit()
}

// DeleteVault - owner-requested removal from a terminal state
func DeleteVault(vaultID principal.Principal, caller principal.Principal) error {
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return err
	}
	if !cfg.Status.Terminal() {
		return fault.InvalidState
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	if err := cascade(vaultID, cfg); err != nil {
		trx.Abort()
		return err
	}
	return trx.Commit()
}

// Purge - maintenance removal of a vault whose lifecycle has ended
//
// called inside the maintenance barrier
func Purge(vaultID principal.Principal, cfg *vault.Config) error {
	return cascade(vaultID, cfg)
}

// remove the vault record and everything keyed under it
func cascade(vaultID principal.Principal, cfg *vault.Config) error {
	if err := member.RemoveByVault(vaultID); err != nil {
		return err
	}
	if err := invite.RemoveByVault(vaultID); err != nil {
		return err
	}
	if err := content.RemoveByVault(vaultID); err != nil {
		return err
	}
	if err := upload.RemoveByVault(vaultID); err != nil {
		return err
	}
	audit.Remove(vaultID)
	vault.RemoveApprovals(vaultID)
	vault.Remove(vaultID)

	metrics.Update(func(m *metrics.Metrics) {
		if m.TotalVaults > 0 {
			m.TotalVaults -= 1
		}
		if m.StorageUsedBytes >= cfg.BytesUsed {
			m.StorageUsedBytes -= cfg.BytesUsed
		}
	})
	return nil
}
