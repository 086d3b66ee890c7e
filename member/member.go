// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package member - vault membership records
//
// members are keyed by vault principal bytes followed by member
// principal bytes, so one vault's members form a contiguous key range
package member

import (
	"bytes"

	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

// Role - what a member is to the vault
type Role uint8

// member roles
const (
	Heir Role = iota + 1
	Witness
)

func (r Role) String() string {
	switch r {
	case Heir:
		return "heir"
	case Witness:
		return "witness"
	default:
		return "unknown"
	}
}

// Valid - check the role exists
func (r Role) Valid() bool {
	return Heir == r || Witness == r
}

// RoleFromString - parse a role name
func RoleFromString(name string) (Role, error) {
	switch name {
	case "heir":
		return Heir, nil
	case "witness":
		return Witness, nil
	default:
		return 0, fault.InvalidInput
	}
}

// Status - membership state
type Status uint8

// membership states
const (
	Pending Status = iota + 1
	Active
	Verified
	Revoked
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Verified:
		return "verified"
	case Revoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Member - one membership record
type Member struct {
	Role              Role   `cbor:"1,keyasint"`
	Status            Status `cbor:"2,keyasint"`
	ShamirIndex       uint8  `cbor:"3,keyasint"`
	ClaimedAt         uint64 `cbor:"4,keyasint"`
	Name              string `cbor:"5,keyasint,omitempty"`
	Relation          string `cbor:"6,keyasint,omitempty"`
	HasApprovedUnlock bool   `cbor:"7,keyasint,omitempty"`
	DownloadDay       uint64 `cbor:"8,keyasint,omitempty"`
	DownloadCount     uint32 `cbor:"9,keyasint,omitempty"`
}

func compositeKey(vaultID principal.Principal, memberID principal.Principal) []byte {
	key := make([]byte, 0, 2*principal.Size)
	key = append(key, vaultID.Bytes()...)
	return append(key, memberID.Bytes()...)
}

// Store - persist a membership record
func Store(vaultID principal.Principal, memberID principal.Principal, m *Member) error {
	value, err := codec.Marshal(m)
	if err != nil {
		return err
	}
	storage.Pool.VaultMembers.Put(compositeKey(vaultID, memberID), value)
	return nil
}

// Fetch - read one membership record
func Fetch(vaultID principal.Principal, memberID principal.Principal) (*Member, error) {
	value := storage.Pool.VaultMembers.Get(compositeKey(vaultID, memberID))
	if nil == value {
		return nil, fault.MemberNotFound
	}
	m := &Member{}
	err := codec.Unmarshal(value, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Has - check a membership exists
func Has(vaultID principal.Principal, memberID principal.Principal) bool {
	return storage.Pool.VaultMembers.Has(compositeKey(vaultID, memberID))
}

// Remove - delete one membership record
func Remove(vaultID principal.Principal, memberID principal.Principal) {
	storage.Pool.VaultMembers.Delete(compositeKey(vaultID, memberID))
}

// sentinel to stop a range scan at the end of one vault's keys
var errRangeEnd = fault.ProcessError("range end")

// MapByVault - run a function over one vault's members
func MapByVault(vaultID principal.Principal, f func(memberID principal.Principal, m *Member) error) error {
	prefix := vaultID.Bytes()
	cursor := storage.Pool.VaultMembers.NewFetchCursor()
	cursor.Seek(prefix)
	err := cursor.Map(func(key []byte, value []byte) error {
		if len(key) != 2*principal.Size || !bytes.HasPrefix(key, prefix) {
			return errRangeEnd
		}
		memberID, err := principal.FromBytes(key[principal.Size:])
		if err != nil {
			return err
		}
		m := &Member{}
		err = codec.Unmarshal(value, m)
		if err != nil {
			return err
		}
		return f(memberID, m)
	})
	if errRangeEnd == err {
		err = nil
	}
	return err
}

// RemoveByVault - drop all of a vault's members, used by the deletion cascade
func RemoveByVault(vaultID principal.Principal) error {
	doomed := []principal.Principal{}
	err := MapByVault(vaultID, func(memberID principal.Principal, m *Member) error {
		doomed = append(doomed, memberID)
		return nil
	})
	if err != nil {
		return err
	}
	for _, memberID := range doomed {
		Remove(vaultID, memberID)
	}
	return nil
}

// UsedShamirIndices - indices held by live members of one role
//
// revoked members release their index
func UsedShamirIndices(vaultID principal.Principal, role Role) (map[uint8]bool, error) {
	used := map[uint8]bool{}
	err := MapByVault(vaultID, func(memberID principal.Principal, m *Member) error {
		if m.Role == role && Revoked != m.Status {
			used[m.ShamirIndex] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return used, nil
}

// RecordDownload - count one download descriptor against the daily limit
//
// the counter resets at the day boundary of engine time
func RecordDownload(vaultID principal.Principal, memberID principal.Principal) error {
	m, err := Fetch(vaultID, memberID)
	if err != nil {
		return err
	}
	day := clock.Now() / (24 * 60 * 60)
	if m.DownloadDay != day {
		m.DownloadDay = day
		m.DownloadCount = 0
	}
	if m.DownloadCount >= constants.DailyDownloadLimit {
		return fault.RateLimitDownload
	}
	m.DownloadCount += 1
	return Store(vaultID, memberID, m)
}
