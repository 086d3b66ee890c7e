// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package invite - invitation tokens and the claim coordinator
//
// tokens carry a dual identity: a compact internal id used as the
// primary key and an external principal handed to the invitee; both
// maps are written in one barrier
package invite

import (
	"encoding/binary"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/metrics"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/sequence"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

// Status - token state
type Status uint8

// token states
const (
	Pending Status = iota + 1
	Claimed
	Revoked
	Expired
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Claimed:
		return "claimed"
	case Revoked:
		return "revoked"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Token - one invitation record
type Token struct {
	External    []byte      `cbor:"1,keyasint"`
	VaultID     []byte      `cbor:"2,keyasint"`
	Role        member.Role `cbor:"3,keyasint"`
	Status      Status      `cbor:"4,keyasint"`
	CreatedAt   uint64      `cbor:"5,keyasint"`
	ExpiresAt   uint64      `cbor:"6,keyasint"`
	ClaimedAt   uint64      `cbor:"7,keyasint,omitempty"`
	ClaimedBy   []byte      `cbor:"8,keyasint,omitempty"`
	ShamirIndex uint8       `cbor:"9,keyasint"`
}

// ClaimData - invitee supplied profile fields
type ClaimData struct {
	Name     string
	Relation string
}

func store(id uint64, token *Token) error {
	value, err := codec.Marshal(token)
	if err != nil {
		return err
	}
	storage.Pool.InviteTokens.Put(sequence.Key(id), value)
	return nil
}

func fetch(id uint64) (*Token, error) {
	value := storage.Pool.InviteTokens.Get(sequence.Key(id))
	if nil == value {
		return nil, fault.TokenInvalid
	}
	token := &Token{}
	err := codec.Unmarshal(value, token)
	if err != nil {
		return nil, err
	}
	return token, nil
}

func resolve(external principal.Principal) (uint64, *Token, error) {
	id, found := sequence.NewIndex(storage.Pool.InviteLookup).Lookup(external)
	if !found {
		return 0, nil, fault.TokenInvalid
	}
	token, err := fetch(id)
	if err != nil {
		return 0, nil, err
	}
	return id, token, nil
}

// Fetch - read a token by its external id
func Fetch(external principal.Principal) (*Token, error) {
	_, token, err := resolve(external)
	return token, err
}

// nextShamirIndex - smallest free index for one role in one vault
//
// indices held by live members and by pending unexpired tokens are
// both unavailable; 0 is reserved
func nextShamirIndex(vaultID principal.Principal, role member.Role) (uint8, error) {
	used, err := member.UsedShamirIndices(vaultID, role)
	if err != nil {
		return 0, err
	}
	now := clock.Now()
	err = Map(func(id uint64, token *Token) error {
		if Pending == token.Status && token.ExpiresAt > now &&
			token.Role == role && string(token.VaultID) == string(vaultID.Bytes()) {
			used[token.ShamirIndex] = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := 1; i <= 255; i += 1 {
		if !used[uint8(i)] {
			return uint8(i), nil
		}
	}
	return 0, fault.ShareIndexExhausted
}

// Generate - create a pending invitation
//
// owner only; the vault must be in a state that permits invites
func Generate(vaultID principal.Principal, role member.Role, caller principal.Principal) (principal.Principal, error) {
	if !role.Valid() {
		return nil, fault.InvalidInput
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return nil, err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return nil, err
	}
	if !cfg.Status.AllowsInvites() {
		return nil, fault.InvalidState
	}

	external, err := principal.New(principal.TagInvite)
	if err != nil {
		return nil, err
	}
	index, err := nextShamirIndex(vaultID, role)
	if err != nil {
		return nil, err
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	id := sequence.New(storage.Pool.InviteCounter).Next()
	token := &Token{
		External:    external.Bytes(),
		VaultID:     vaultID.Bytes(),
		Role:        role,
		Status:      Pending,
		CreatedAt:   now,
		ExpiresAt:   now + constants.InviteLifetime,
		ShamirIndex: index,
	}
	if err := store(id, token); err != nil {
		trx.Abort()
		return nil, err
	}
	sequence.NewIndex(storage.Pool.InviteLookup).Put(external, id)
	audit.Append(vaultID, audit.InviteGenerated, caller)
	metrics.Update(func(m *metrics.Metrics) {
		m.InvitesToday += 1
	})

	if err := trx.Commit(); err != nil {
		return nil, err
	}
	return external, nil
}

// Claim - turn a pending token into a membership
func Claim(external principal.Principal, claimer principal.Principal, data ClaimData) (*member.Member, error) {
	if claimer.IsZero() {
		return nil, fault.InvalidPrincipal
	}
	id, token, err := resolve(external)
	if err != nil {
		return nil, err
	}
	if Pending != token.Status || clock.Now() >= token.ExpiresAt {
		return nil, fault.TokenExpired
	}
	vaultID, err := principal.FromBytes(token.VaultID)
	if err != nil {
		return nil, err
	}
	if member.Has(vaultID, claimer) {
		return nil, fault.AlreadyClaimed
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return nil, err
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	m := &member.Member{
		Role:        token.Role,
		Status:      member.Active,
		ShamirIndex: token.ShamirIndex,
		ClaimedAt:   now,
		Name:        data.Name,
		Relation:    data.Relation,
	}
	if err := member.Store(vaultID, claimer, m); err != nil {
		trx.Abort()
		return nil, err
	}

	token.Status = Claimed
	token.ClaimedAt = now
	token.ClaimedBy = claimer.Bytes()
	if err := store(id, token); err != nil {
		trx.Abort()
		return nil, err
	}

	// first heir claim completes the setup phase
	if vault.NeedSetup == cfg.Status && member.Heir == token.Role {
		if err := cfg.Transition(vault.SetupComplete); err != nil {
			trx.Abort()
			return nil, err
		}
		if err := vault.Store(vaultID, cfg); err != nil {
			trx.Abort()
			return nil, err
		}
	}

	audit.Append(vaultID, audit.InviteClaimed, claimer)
	audit.Append(vaultID, audit.MemberJoined, claimer)
	metrics.Update(func(m *metrics.Metrics) {
		m.InvitesClaimed += 1
	})

	if err := trx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// Revoke - cancel a pending token
//
// owner only; only pending tokens can be revoked
func Revoke(external principal.Principal, caller principal.Principal) error {
	id, token, err := resolve(external)
	if err != nil {
		return err
	}
	vaultID, err := principal.FromBytes(token.VaultID)
	if err != nil {
		return err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return err
	}
	if Pending != token.Status {
		return fault.InvalidState
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	token.Status = Revoked
	if err := store(id, token); err != nil {
		trx.Abort()
		return err
	}
	audit.Append(vaultID, audit.InviteRevoked, caller)
	return trx.Commit()
}

// Map - run a function over every token in internal id order
func Map(f func(id uint64, token *Token) error) error {
	return storage.Pool.InviteTokens.NewFetchCursor().Map(func(key []byte, value []byte) error {
		if 8 != len(key) {
			return fault.StorageError("invite: malformed key")
		}
		token := &Token{}
		err := codec.Unmarshal(value, token)
		if err != nil {
			return err
		}
		return f(binary.BigEndian.Uint64(key), token)
	})
}

// ExpireSweep - flip pending tokens past their expiry
//
// returns the number of tokens expired
func ExpireSweep() (int, error) {
	now := clock.Now()
	expired := map[uint64]*Token{}
	err := Map(func(id uint64, token *Token) error {
		if Pending == token.Status && token.ExpiresAt <= now {
			expired[id] = token
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for id, token := range expired {
		token.Status = Expired
		if err := store(id, token); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// RemoveByVault - drop all of a vault's tokens, used by the deletion cascade
func RemoveByVault(vaultID principal.Principal) error {
	doomed := map[uint64]*Token{}
	err := Map(func(id uint64, token *Token) error {
		if string(token.VaultID) == string(vaultID.Bytes()) {
			doomed[id] = token
		}
		return nil
	})
	if err != nil {
		return err
	}
	ix := sequence.NewIndex(storage.Pool.InviteLookup)
	for id, token := range doomed {
		storage.Pool.InviteTokens.Delete(sequence.Key(id))
		external, err := principal.FromBytes(token.External)
		if nil == err {
			ix.Delete(external)
		}
	}
	return nil
}
