// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lifecycle_test

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/billing"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/invite"
	"github.com/keeper-vault/keeperd/ledger"
	"github.com/keeper-vault/keeperd/lifecycle"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/metrics"
	"github.com/keeper-vault/keeperd/payment"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

const (
	testingDirName   = "testing"
	databaseFileName = testingDirName + "/test.leveldb"
)

// ledger stub: pays whatever subaccount is asked about
type stubLedger struct {
	amount uint64
	txHash string
	fail   bool
	silent bool
}

func (s *stubLedger) TransactionsByBlock(blockIndex uint64) ([]ledger.Transaction, error) {
	return nil, fault.HttpError("stub: no block query")
}

func (s *stubLedger) TransactionsBySubaccount(subaccount []byte, since uint64) ([]ledger.Transaction, error) {
	if s.fail {
		return nil, fault.HttpError("stub: down")
	}
	if s.silent {
		return []ledger.Transaction{}, nil
	}
	return []ledger.Transaction{{
		From:         "payer",
		ToSubaccount: hex.EncodeToString(subaccount),
		Amount:       s.amount,
		TxHash:       s.txHash,
		Timestamp:    clock.Now(),
	}}, nil
}

var stub *stubLedger

func removeFiles() {
	os.RemoveAll(testingDirName)
}

func setup(t *testing.T) {
	removeFiles()
	os.Mkdir(testingDirName, 0700)
	clock.Set(1_700_000_000)

	err := storage.Initialise(databaseFileName)
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}

	stub = &stubLedger{}
	engine, _ := principal.New(principal.TagService)
	err = payment.Initialise(stub, engine)
	if nil != err {
		t.Fatalf("payment initialise error: %s", err)
	}
	err = lifecycle.Initialise()
	if nil != err {
		t.Fatalf("lifecycle initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	lifecycle.Finalise()
	payment.Finalise()
	storage.Finalise()
	clock.Reset()
	removeFiles()
}

func TestMain(m *testing.M) {
	removeFiles()
	os.Mkdir(testingDirName, 0700)
	logging := logger.Configuration{
		Directory: testingDirName,
		File:      "testing.log",
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}
	_ = logger.Initialise(logging)
	rc := m.Run()
	removeFiles()
	os.Exit(rc)
}

// pay for a vault and verify, returning the new vault
func payForVault(t *testing.T, owner principal.Principal, plan vault.Plan) principal.Principal {
	info, err := payment.InitSession(payment.Purpose{
		Kind: payment.InitialVaultCreation,
		Plan: plan,
	}, plan.Price(), owner)
	assert.Nil(t, err, "init session error")

	stub.amount = plan.Price()
	stub.txHash = "tx-" + info.ID
	stub.silent = false
	stub.fail = false

	_, err = payment.Verify(info.ID, nil)
	assert.Nil(t, err, "verify error")

	session, err := payment.GetSession(info.ID)
	assert.Nil(t, err, "session read error")
	return session.VaultID
}

// payment, transfer, verify: one vault in setup phase plus one
// billing row
func TestHappyCreate(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)

	info, err := payment.InitSession(payment.Purpose{
		Kind: payment.InitialVaultCreation,
		Plan: vault.Basic,
	}, 600_000_000, owner)
	assert.Nil(t, err, "init session error")
	assert.Equal(t, uint64(600_000_000), info.Amount, "wrong amount")
	assert.Equal(t, clock.Now()+30*60, info.ExpiresAt, "wrong expiry")

	// ledger has not seen the transfer yet
	stub.silent = true
	_, err = payment.Verify(info.ID, nil)
	assert.Equal(t, fault.PaymentPending, err, "wrong pending error")

	// transfer lands
	stub.silent = false
	stub.amount = 600_000_000
	stub.txHash = "tx-create"

	txHash, err := payment.Verify(info.ID, nil)
	assert.Nil(t, err, "verify error")
	assert.Equal(t, "tx-create", txHash, "wrong hash")

	session, _ := payment.GetSession(info.ID)
	assert.NotNil(t, session.VaultID, "vault id not recorded")

	cfg, err := vault.Fetch(session.VaultID)
	assert.Nil(t, err, "vault fetch error")
	assert.Equal(t, vault.NeedSetup, cfg.Status, "wrong status")
	assert.Equal(t, owner.Bytes(), cfg.Owner, "wrong owner")
	assert.Equal(t, vault.Basic.Quota(), cfg.StorageQuota, "wrong quota")

	assert.Equal(t, uint64(1), billing.Count(), "wrong billing count")
	entry, err := billing.Get(0)
	assert.Nil(t, err, "billing read error")
	assert.Equal(t, billing.InitialVaultCreation, entry.TxType, "wrong tx type")
	assert.Equal(t, "tx-create", entry.LedgerTxHash, "wrong billing hash")

	assert.Equal(t, uint64(1), metrics.Get().TotalVaults, "wrong metrics")
}

func TestVerifyIdempotent(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Basic)

	countBefore := billing.Count()
	total := metrics.Get().TotalVaults

	// find the session again via a fresh verify
	info, err := payment.InitSession(payment.Purpose{
		Kind: payment.InitialVaultCreation,
		Plan: vault.Basic,
	}, vault.Basic.Price(), owner)
	assert.Nil(t, err, "init session error")
	stub.amount = vault.Basic.Price()
	stub.txHash = "tx-second"
	first, err := payment.Verify(info.ID, nil)
	assert.Nil(t, err, "verify error")

	// re-verification returns the same result with no new writes
	second, err := payment.Verify(info.ID, nil)
	assert.Nil(t, err, "reverify error")
	assert.Equal(t, first, second, "result not idempotent")
	assert.Equal(t, countBefore+1, billing.Count(), "extra billing row")
	assert.Equal(t, total+1, metrics.Get().TotalVaults, "extra vault counted")

	_ = vaultID
}

func TestUnderpayment(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	info, err := payment.InitSession(payment.Purpose{
		Kind: payment.InitialVaultCreation,
		Plan: vault.Basic,
	}, vault.Basic.Price(), owner)
	assert.Nil(t, err, "init session error")

	stub.amount = vault.Basic.Price() - 1
	stub.txHash = "tx-short"
	_, err = payment.Verify(info.ID, nil)
	assert.Equal(t, fault.PaymentAmountMismatch, err, "underpayment accepted")
	assert.Equal(t, uint64(0), billing.Count(), "billing row on failure")
}

func TestPaymentTimeout(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	info, err := payment.InitSession(payment.Purpose{
		Kind: payment.InitialVaultCreation,
		Plan: vault.Basic,
	}, vault.Basic.Price(), owner)
	assert.Nil(t, err, "init session error")

	clock.Advance(30*60 + 1)
	stub.amount = vault.Basic.Price()
	_, err = payment.Verify(info.ID, nil)
	assert.Equal(t, fault.PaymentTimeout, err, "expired session verified")
}

// plan upgrade half way through the term pays half the difference
func TestPlanUpgradeProrate(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Basic)

	// half the ten year term elapses
	clock.Advance(5 * 365 * 24 * 60 * 60)

	newPlan := vault.Standard
	info, err := lifecycle.UpdateVault(vaultID, lifecycle.Patch{Plan: &newPlan}, owner)
	assert.Nil(t, err, "update error")
	assert.NotNil(t, info, "no upgrade session")

	difference := vault.Standard.Price() - vault.Basic.Price()
	assert.Equal(t, difference/2, info.Amount, "wrong prorated amount")

	// plan unchanged until the session verifies
	cfg, _ := vault.Fetch(vaultID)
	assert.Equal(t, vault.Basic, cfg.Plan, "plan changed early")

	stub.amount = info.Amount
	stub.txHash = "tx-upgrade"
	_, err = payment.Verify(info.ID, nil)
	assert.Nil(t, err, "verify error")

	cfg, _ = vault.Fetch(vaultID)
	assert.Equal(t, vault.Standard, cfg.Plan, "plan not changed")
	assert.Equal(t, vault.Standard.Quota(), cfg.StorageQuota, "quota not recomputed")

	// exactly one upgrade billing row, idempotent on reverify
	count := billing.Count()
	entry, _ := billing.Get(count - 1)
	assert.Equal(t, billing.PlanUpgrade, entry.TxType, "wrong tx type")

	_, err = payment.Verify(info.ID, nil)
	assert.Nil(t, err, "reverify error")
	assert.Equal(t, count, billing.Count(), "extra billing row")
}

func TestDowngradeRejected(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Standard)

	newPlan := vault.Basic
	_, err := lifecycle.UpdateVault(vaultID, lifecycle.Patch{Plan: &newPlan}, owner)
	assert.Equal(t, fault.InvalidInput, err, "downgrade accepted")
}

func TestUpdateVaultFields(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Basic)

	name := "estate"
	days := uint32(90)
	info, err := lifecycle.UpdateVault(vaultID, lifecycle.Patch{
		Name:           &name,
		InactivityDays: &days,
	}, owner)
	assert.Nil(t, err, "update error")
	assert.Nil(t, info, "unexpected payment session")

	cfg, _ := vault.Fetch(vaultID)
	assert.Equal(t, "estate", cfg.Name, "wrong name")
	assert.Equal(t, uint32(90), cfg.InactivityDays, "wrong inactivity")

	stranger, _ := principal.New(principal.TagMember)
	_, err = lifecycle.UpdateVault(vaultID, lifecycle.Patch{Name: &name}, stranger)
	assert.Equal(t, fault.OwnerGuardFailed, err, "wrong guard error")
}

// claim an heir, verify them, approve, then unlock
func TestUnlockFlow(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Basic)

	external, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Nil(t, err, "invite error")
	heir, _ := principal.New(principal.TagMember)
	_, err = invite.Claim(external, heir, invite.ClaimData{})
	assert.Nil(t, err, "claim error")

	err = lifecycle.SetVaultStatus(vaultID, vault.Active)
	assert.Nil(t, err, "activate error")

	// no quorum yet
	err = lifecycle.TriggerUnlock(vaultID, heir)
	assert.Equal(t, fault.ApprovalQuorumNotMet, err, "unlock without quorum")

	// active membership is not enough to approve
	err = lifecycle.RecordApproval(vaultID, heir)
	assert.Equal(t, fault.NotAuthorized, err, "unverified approval accepted")

	// only the owner can attest the member
	err = lifecycle.VerifyMember(vaultID, heir, heir)
	assert.Equal(t, fault.OwnerGuardFailed, err, "self attestation allowed")
	assert.Nil(t, lifecycle.VerifyMember(vaultID, heir, owner), "verify error")

	// attesting twice is harmless
	assert.Nil(t, lifecycle.VerifyMember(vaultID, heir, owner), "repeat verify error")
	m, _ := member.Fetch(vaultID, heir)
	assert.Equal(t, member.Verified, m.Status, "member not verified")

	err = lifecycle.RecordApproval(vaultID, heir)
	assert.Nil(t, err, "approval error")

	// approving twice counts once
	err = lifecycle.RecordApproval(vaultID, heir)
	assert.Nil(t, err, "repeat approval error")
	assert.Equal(t, uint32(1), vault.GetApprovals(vaultID).Heirs, "double counted")

	ok, err := lifecycle.CheckUnlock(vaultID)
	assert.Nil(t, err, "check error")
	assert.False(t, ok, "unlock predicate without rule")

	err = lifecycle.TriggerUnlock(vaultID, heir)
	assert.Nil(t, err, "unlock error")

	cfg, _ := vault.Fetch(vaultID)
	assert.Equal(t, vault.Unlockable, cfg.Status, "wrong status")
	assert.Equal(t, clock.Now(), cfg.UnlockedAt, "unlock time not stamped")

	err = lifecycle.TriggerUnlock(vaultID, heir)
	assert.Equal(t, fault.AlreadyUnlockable, err, "double unlock allowed")
}

// revocation withdraws a counted approval and frees the share index
func TestRevokeMember(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Basic)

	external, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Nil(t, err, "invite error")
	heir, _ := principal.New(principal.TagMember)
	_, err = invite.Claim(external, heir, invite.ClaimData{})
	assert.Nil(t, err, "claim error")

	assert.Nil(t, lifecycle.SetVaultStatus(vaultID, vault.Active), "activate error")
	assert.Nil(t, lifecycle.VerifyMember(vaultID, heir, owner), "verify error")
	assert.Nil(t, lifecycle.RecordApproval(vaultID, heir), "approval error")
	assert.Equal(t, uint32(1), vault.GetApprovals(vaultID).Heirs, "approval not counted")

	stranger, _ := principal.New(principal.TagMember)
	err = lifecycle.RevokeMember(vaultID, heir, stranger)
	assert.Equal(t, fault.OwnerGuardFailed, err, "stranger revoke allowed")

	assert.Nil(t, lifecycle.RevokeMember(vaultID, heir, owner), "revoke error")
	assert.Equal(t, uint32(0), vault.GetApprovals(vaultID).Heirs, "approval not withdrawn")

	m, err := member.Fetch(vaultID, heir)
	assert.Nil(t, err, "member fetch error")
	assert.Equal(t, member.Revoked, m.Status, "not revoked")
	assert.False(t, m.HasApprovedUnlock, "approval flag kept")

	// revoked members cannot approve or be revoked again
	err = lifecycle.RecordApproval(vaultID, heir)
	assert.Equal(t, fault.MemberGuardFailed, err, "revoked approval accepted")
	err = lifecycle.RevokeMember(vaultID, heir, owner)
	assert.Equal(t, fault.InvalidState, err, "double revoke allowed")

	// the freed share index goes to the next invitation
	external, err = invite.Generate(vaultID, member.Heir, owner)
	assert.Nil(t, err, "second invite error")
	token, err := invite.Fetch(external)
	assert.Nil(t, err, "token fetch error")
	assert.Equal(t, uint8(1), token.ShamirIndex, "freed index not reused")
}

func TestDeleteVaultCascade(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)
	vaultID := payForVault(t, owner, vault.Basic)

	external, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Nil(t, err, "invite error")
	heir, _ := principal.New(principal.TagMember)
	_, err = invite.Claim(external, heir, invite.ClaimData{})
	assert.Nil(t, err, "claim error")

	// deletion only from a terminal state
	err = lifecycle.DeleteVault(vaultID, owner)
	assert.Equal(t, fault.InvalidState, err, "live vault deleted")

	assert.Nil(t, lifecycle.SetVaultStatus(vaultID, vault.Active), "activate error")
	assert.Nil(t, lifecycle.SetVaultStatus(vaultID, vault.GraceMaster), "grace error")
	assert.Nil(t, lifecycle.SetVaultStatus(vaultID, vault.GraceHeir), "grace error")
	assert.Nil(t, lifecycle.SetVaultStatus(vaultID, vault.Unlockable), "unlock error")
	assert.Nil(t, lifecycle.SetVaultStatus(vaultID, vault.Expired), "expire error")

	err = lifecycle.DeleteVault(vaultID, owner)
	assert.Nil(t, err, "delete error")

	assert.False(t, vault.Has(vaultID), "vault survived")
	assert.False(t, member.Has(vaultID, heir), "member survived")
	_, err = invite.Fetch(external)
	assert.Equal(t, fault.TokenInvalid, err, "token survived")
	assert.Equal(t, uint64(0), metrics.Get().TotalVaults, "metrics not adjusted")
}
