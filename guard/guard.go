// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package guard - authorization checks shared by the coordinators
//
// each guard derives its accept set from the vault record or from the
// global configuration cells and returns a typed fault on rejection
package guard

import (
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/settings"
	"github.com/keeper-vault/keeperd/vault"
)

// Owner - caller must be the vault owner
func Owner(cfg *vault.Config, caller principal.Principal) error {
	if caller.IsZero() {
		return fault.InvalidPrincipal
	}
	if !caller.Equal(cfg.OwnerPrincipal()) {
		return fault.OwnerGuardFailed
	}
	return nil
}

// OwnerOrHeir - caller must be the owner or a live heir member
func OwnerOrHeir(vaultID principal.Principal, cfg *vault.Config, caller principal.Principal) error {
	if nil == Owner(cfg, caller) {
		return nil
	}
	m, err := member.Fetch(vaultID, caller)
	if nil == err && member.Heir == m.Role && member.Revoked != m.Status {
		return nil
	}
	return fault.NotAuthorized
}

// Member - caller must be a live member of the vault
func Member(vaultID principal.Principal, caller principal.Principal) (*member.Member, error) {
	if caller.IsZero() {
		return nil, fault.InvalidPrincipal
	}
	m, err := member.Fetch(vaultID, caller)
	if err != nil {
		return nil, fault.MemberGuardFailed
	}
	if member.Revoked == m.Status {
		return nil, fault.MemberGuardFailed
	}
	return m, nil
}

// RoleMember - caller must be a live member holding the expected role
func RoleMember(vaultID principal.Principal, caller principal.Principal, role member.Role) (*member.Member, error) {
	m, err := Member(vaultID, caller)
	if err != nil {
		return nil, err
	}
	if m.Role != role {
		return nil, fault.NotAuthorized
	}
	return m, nil
}

// Admin - caller must be the configured admin principal
func Admin(caller principal.Principal) error {
	admin, err := settings.Admin()
	if err != nil {
		return fault.AdminGuardFailed
	}
	if !caller.Equal(admin) {
		return fault.AdminGuardFailed
	}
	return nil
}

// Scheduler - caller must be the configured scheduler principal
func Scheduler(caller principal.Principal) error {
	scheduler, err := settings.Scheduler()
	if err != nil {
		return fault.SchedulerGuardFailed
	}
	if !caller.Equal(scheduler) {
		return fault.SchedulerGuardFailed
	}
	return nil
}

// Resource - a host-supplied resource gauge must clear the configured floor
func Resource(available uint64) error {
	if available < settings.MinResourceThreshold() {
		return fault.ResourceLow
	}
	return nil
}
