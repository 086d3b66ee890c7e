// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/lifecycle"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
	"github.com/keeper-vault/keeperd/vault"
)

// Vaults - type for the RPC
type Vaults struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// VaultGetArguments - arguments for RPC request
type VaultGetArguments struct {
	Caller  string `json:"caller"`
	VaultId string `json:"vaultId"`
}

// VaultGetReply - results from RPC request
type VaultGetReply struct {
	Owner            string `json:"owner"`
	Plan             string `json:"plan"`
	Status           string `json:"status"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	StorageQuota     uint64 `json:"storageQuota"`
	BytesUsed        uint64 `json:"bytesUsed"`
	CreatedAt        uint64 `json:"createdAt"`
	UpdatedAt        uint64 `json:"updatedAt"`
	ExpiresAt        uint64 `json:"expiresAt"`
	UnlockTime       uint64 `json:"unlockTime,omitempty"`
	InactivityDays   uint32 `json:"inactivityDays,omitempty"`
	HeirThreshold    uint32 `json:"heirThreshold"`
	WitnessThreshold uint32 `json:"witnessThreshold"`
	UnlockedAt       uint64 `json:"unlockedAt,omitempty"`
}

// Get - read one vault record
//
// owner or any non-revoked member; queries bypass the write limiter
func (v *Vaults) Get(arguments *VaultGetArguments, reply *VaultGetReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := memberOrOwner(vaultID, cfg, caller); err != nil {
		return err
	}

	reply.Owner = cfg.OwnerPrincipal().String()
	reply.Plan = cfg.Plan.String()
	reply.Status = cfg.Status.String()
	reply.Name = cfg.Name
	reply.Description = cfg.Description
	reply.StorageQuota = cfg.StorageQuota
	reply.BytesUsed = cfg.BytesUsed
	reply.CreatedAt = cfg.CreatedAt
	reply.UpdatedAt = cfg.UpdatedAt
	reply.ExpiresAt = cfg.ExpiresAt
	reply.UnlockTime = cfg.UnlockTime
	reply.InactivityDays = cfg.InactivityDays
	reply.HeirThreshold = cfg.HeirThreshold
	reply.WitnessThreshold = cfg.WitnessThreshold
	reply.UnlockedAt = cfg.UnlockedAt
	return nil
}

// VaultUpdateArguments - arguments for RPC request
//
// nil fields are left unchanged
type VaultUpdateArguments struct {
	Caller           string  `json:"caller"`
	VaultId          string  `json:"vaultId"`
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	UnlockTime       *uint64 `json:"unlockTime,omitempty"`
	InactivityDays   *uint32 `json:"inactivityDays,omitempty"`
	HeirThreshold    *uint32 `json:"heirThreshold,omitempty"`
	WitnessThreshold *uint32 `json:"witnessThreshold,omitempty"`
	Plan             *string `json:"plan,omitempty"`
}

// VaultUpdateReply - results from RPC request
//
// a plan change returns an open upgrade payment session; other edits
// apply immediately
type VaultUpdateReply struct {
	Updated        bool   `json:"updated"`
	SessionId      string `json:"sessionId,omitempty"`
	ReceiveAddress string `json:"receiveAddress,omitempty"`
	Amount         uint64 `json:"amount,omitempty"`
	ExpiresAt      uint64 `json:"expiresAt,omitempty"`
}

// Update - apply owner edits to a vault
func (v *Vaults) Update(arguments *VaultUpdateArguments, reply *VaultUpdateReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	if err := v.Limiter.Allow(caller); err != nil {
		return err
	}

	patch := lifecycle.Patch{
		Name:             arguments.Name,
		Description:      arguments.Description,
		UnlockTime:       arguments.UnlockTime,
		InactivityDays:   arguments.InactivityDays,
		HeirThreshold:    arguments.HeirThreshold,
		WitnessThreshold: arguments.WitnessThreshold,
	}
	if nil != arguments.Plan {
		plan, err := vault.PlanFromString(*arguments.Plan)
		if err != nil {
			return err
		}
		patch.Plan = &plan
	}

	upgrade, err := lifecycle.UpdateVault(vaultID, patch, caller)
	if err != nil {
		return err
	}

	reply.Updated = true
	if nil != upgrade {
		reply.SessionId = upgrade.ID
		reply.ReceiveAddress = upgrade.ReceiveAddress
		reply.Amount = upgrade.Amount
		reply.ExpiresAt = upgrade.ExpiresAt
	}
	return nil
}

// VaultActionArguments - arguments for RPC request
type VaultActionArguments struct {
	Caller  string `json:"caller"`
	VaultId string `json:"vaultId"`
}

// VaultActionReply - results from RPC request
type VaultActionReply struct {
	Status string `json:"status"`
}

// TriggerUnlock - move a vault to unlockable
func (v *Vaults) TriggerUnlock(arguments *VaultActionArguments, reply *VaultActionReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	if err := v.Limiter.Allow(caller); err != nil {
		return err
	}

	if err := lifecycle.TriggerUnlock(vaultID, caller); err != nil {
		return err
	}
	v.Log.Infof("unlock: vault: %s", vaultID)

	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	reply.Status = cfg.Status.String()
	return nil
}

// Approve - record one member's unlock approval
func (v *Vaults) Approve(arguments *VaultActionArguments, reply *VaultActionReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	if err := v.Limiter.Allow(caller); err != nil {
		return err
	}

	if err := lifecycle.RecordApproval(vaultID, caller); err != nil {
		return err
	}

	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	reply.Status = cfg.Status.String()
	return nil
}

// Delete - remove a terminal vault and everything under it
func (v *Vaults) Delete(arguments *VaultActionArguments, reply *VaultActionReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	if err := v.Limiter.Allow(caller); err != nil {
		return err
	}

	if err := lifecycle.DeleteVault(vaultID, caller); err != nil {
		return err
	}
	v.Log.Infof("delete: vault: %s", vaultID)

	reply.Status = "deleted"
	return nil
}

// MemberActionArguments - arguments for RPC request
type MemberActionArguments struct {
	Caller   string `json:"caller"`
	VaultId  string `json:"vaultId"`
	MemberId string `json:"memberId"`
}

// MemberActionReply - results from RPC request
type MemberActionReply struct {
	Status string `json:"status"`
}

// VerifyMember - owner attests a claimed member's identity
//
// a member must be verified before its unlock approval counts
func (v *Vaults) VerifyMember(arguments *MemberActionArguments, reply *MemberActionReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	memberID, err := target(arguments.MemberId, principal.TagMember)
	if err != nil {
		return err
	}
	if err := v.Limiter.Allow(caller); err != nil {
		return err
	}

	if err := lifecycle.VerifyMember(vaultID, memberID, caller); err != nil {
		return err
	}

	m, err := member.Fetch(vaultID, memberID)
	if err != nil {
		return err
	}
	reply.Status = m.Status.String()
	return nil
}

// RevokeMember - owner removes a member, freeing its share index
func (v *Vaults) RevokeMember(arguments *MemberActionArguments, reply *MemberActionReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	memberID, err := target(arguments.MemberId, principal.TagMember)
	if err != nil {
		return err
	}
	if err := v.Limiter.Allow(caller); err != nil {
		return err
	}

	if err := lifecycle.RevokeMember(vaultID, memberID, caller); err != nil {
		return err
	}
	v.Log.Infof("revoke member: vault: %s  member: %s", vaultID, memberID)

	reply.Status = member.Revoked.String()
	return nil
}

// MemberRecord - one row of the member listing
type MemberRecord struct {
	MemberId    string `json:"memberId"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	Name        string `json:"name,omitempty"`
	Relation    string `json:"relation,omitempty"`
	ClaimedAt   uint64 `json:"claimedAt"`
	HasApproved bool   `json:"hasApproved"`
}

// VaultMembersReply - results from RPC request
type VaultMembersReply struct {
	Members []MemberRecord `json:"members"`
}

// Members - list the memberships of a vault
func (v *Vaults) Members(arguments *VaultGetArguments, reply *VaultMembersReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := memberOrOwner(vaultID, cfg, caller); err != nil {
		return err
	}

	records := []MemberRecord{}
	err = member.MapByVault(vaultID, func(memberID principal.Principal, m *member.Member) error {
		records = append(records, MemberRecord{
			MemberId:    memberID.String(),
			Role:        m.Role.String(),
			Status:      m.Status.String(),
			Name:        m.Name,
			Relation:    m.Relation,
			ClaimedAt:   m.ClaimedAt,
			HasApproved: m.HasApprovedUnlock,
		})
		return nil
	})
	if err != nil {
		return err
	}
	reply.Members = records
	return nil
}

// AuditRecord - one audit trail row
type AuditRecord struct {
	Action    string `json:"action"`
	Actor     string `json:"actor,omitempty"`
	Timestamp uint64 `json:"timestamp"`
}

// VaultAuditReply - results from RPC request
type VaultAuditReply struct {
	Entries []AuditRecord `json:"entries"`
}

// Audit - read the audit trail of a vault
func (v *Vaults) Audit(arguments *VaultGetArguments, reply *VaultAuditReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := memberOrOwner(vaultID, cfg, caller); err != nil {
		return err
	}

	entries := []AuditRecord{}
	for _, e := range audit.Get(vaultID) {
		record := AuditRecord{
			Action:    e.Action.String(),
			Timestamp: e.Timestamp,
		}
		if actor, err := principal.FromBytes(e.Actor); nil == err {
			record.Actor = actor.String()
		}
		entries = append(entries, record)
	}
	reply.Entries = entries
	return nil
}
