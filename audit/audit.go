// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package audit - per-vault activity trail
//
// each vault's trail is a single vector rewritten on append; the
// maintenance engine compacts long trails to a configured tail
package audit

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

// Action - audit action code
type Action uint8

// audit action codes
const (
	VaultCreated Action = iota + 1
	VaultUpdated
	VaultUnlocked
	VaultExpired
	VaultDeleted
	MemberInvited
	MemberJoined
	MemberRemoved
	MemberApprovedUnlock
	ContentUploaded
	ContentDownloaded
	ContentDeleted
	InviteGenerated
	InviteClaimed
	InviteRevoked
	PaymentVerified
	MaintenanceRun
	MemberVerified // appended: action codes are persisted
)

var actionNames = map[Action]string{
	VaultCreated:         "vault-created",
	VaultUpdated:         "vault-updated",
	VaultUnlocked:        "vault-unlocked",
	VaultExpired:         "vault-expired",
	VaultDeleted:         "vault-deleted",
	MemberInvited:        "member-invited",
	MemberJoined:         "member-joined",
	MemberRemoved:        "member-removed",
	MemberApprovedUnlock: "member-approved-unlock",
	ContentUploaded:      "content-uploaded",
	ContentDownloaded:    "content-downloaded",
	ContentDeleted:       "content-deleted",
	InviteGenerated:      "invite-generated",
	InviteClaimed:        "invite-claimed",
	InviteRevoked:        "invite-revoked",
	PaymentVerified:      "payment-verified",
	MaintenanceRun:       "maintenance-run",
	MemberVerified:       "member-verified",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Entry - one audit record
type Entry struct {
	Action    Action `cbor:"1,keyasint"`
	Actor     []byte `cbor:"2,keyasint"`
	Timestamp uint64 `cbor:"3,keyasint"`
	VaultID   []byte `cbor:"4,keyasint"`
}

func load(vaultID principal.Principal) []Entry {
	value := storage.Pool.AuditLogs.Get(vaultID.Bytes())
	if nil == value {
		return nil
	}
	var entries []Entry
	err := codec.Unmarshal(value, &entries)
	logger.PanicIfError("audit.load", err)
	return entries
}

func store(vaultID principal.Principal, entries []Entry) {
	value, err := codec.Marshal(entries)
	logger.PanicIfError("audit.store", err)
	storage.Pool.AuditLogs.Put(vaultID.Bytes(), value)
}

// Append - add one entry stamping the current time
func Append(vaultID principal.Principal, action Action, actor principal.Principal) {
	entries := load(vaultID)
	entries = append(entries, Entry{
		Action:    action,
		Actor:     actor.Bytes(),
		Timestamp: clock.Now(),
		VaultID:   vaultID.Bytes(),
	})
	store(vaultID, entries)
}

// Get - the full trail for a vault
func Get(vaultID principal.Principal) []Entry {
	return load(vaultID)
}

// Count - trail length without decoding copies for callers
func Count(vaultID principal.Principal) int {
	return len(load(vaultID))
}

// Compact - keep only the last n entries
func Compact(vaultID principal.Principal, keepLastN int) {
	entries := load(vaultID)
	if keepLastN < 0 {
		keepLastN = 0
	}
	if len(entries) <= keepLastN {
		return
	}
	store(vaultID, entries[len(entries)-keepLastN:])
}

// Remove - drop the whole trail, used by the vault deletion cascade
func Remove(vaultID principal.Principal) {
	storage.Pool.AuditLogs.Delete(vaultID.Bytes())
}
