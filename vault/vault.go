// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package vault - vault configuration records
//
// the lifecycle coordinator is the only writer to the status field;
// this package only validates edges and persists records
package vault

import (
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

// Config - one vault record
type Config struct {
	Owner               []byte `cbor:"1,keyasint"`
	Plan                Plan   `cbor:"2,keyasint"`
	Status              Status `cbor:"3,keyasint"`
	Name                string `cbor:"4,keyasint"`
	Description         string `cbor:"5,keyasint,omitempty"`
	StorageQuota        uint64 `cbor:"6,keyasint"`
	BytesUsed           uint64 `cbor:"7,keyasint"`
	CreatedAt           uint64 `cbor:"8,keyasint"`
	UpdatedAt           uint64 `cbor:"9,keyasint"`
	ExpiresAt           uint64 `cbor:"10,keyasint"`
	StatusChangedAt     uint64 `cbor:"11,keyasint"`
	UnlockTime          uint64 `cbor:"12,keyasint,omitempty"`
	InactivityDays      uint32 `cbor:"13,keyasint,omitempty"`
	HeirThreshold       uint32 `cbor:"14,keyasint"`
	WitnessThreshold    uint32 `cbor:"15,keyasint"`
	UnlockedAt          uint64 `cbor:"16,keyasint,omitempty"`
	LastAccessedByOwner uint64 `cbor:"17,keyasint"`
}

// OwnerPrincipal - decode the stored owner
func (cfg *Config) OwnerPrincipal() principal.Principal {
	p, _ := principal.FromBytes(cfg.Owner)
	return p
}

// QuotaRemaining - bytes still available under the plan quota
func (cfg *Config) QuotaRemaining() uint64 {
	if cfg.BytesUsed >= cfg.StorageQuota {
		return 0
	}
	return cfg.StorageQuota - cfg.BytesUsed
}

// Transition - apply one lifecycle edge
//
// stamps UpdatedAt and StatusChangedAt; entering Unlockable also
// stamps UnlockedAt
func (cfg *Config) Transition(target Status) error {
	if !cfg.Status.CanTransition(target) {
		return fault.InvalidStateTransition
	}
	now := clock.Now()
	cfg.Status = target
	cfg.UpdatedAt = now
	cfg.StatusChangedAt = now
	if Unlockable == target {
		cfg.UnlockedAt = now
	}
	return nil
}

// Store - persist a vault record
func Store(vaultID principal.Principal, cfg *Config) error {
	value, err := codec.Marshal(cfg)
	if err != nil {
		return err
	}
	storage.Pool.VaultConfigs.Put(vaultID.Bytes(), value)
	return nil
}

// Fetch - read a vault record
func Fetch(vaultID principal.Principal) (*Config, error) {
	value := storage.Pool.VaultConfigs.Get(vaultID.Bytes())
	if nil == value {
		return nil, fault.VaultNotFound
	}
	cfg := &Config{}
	err := codec.Unmarshal(value, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Has - check a vault exists
func Has(vaultID principal.Principal) bool {
	return storage.Pool.VaultConfigs.Has(vaultID.Bytes())
}

// Remove - delete a vault record
func Remove(vaultID principal.Principal) {
	storage.Pool.VaultConfigs.Delete(vaultID.Bytes())
}

// Map - run a function over every vault record
//
// the scan streams from committed state only
func Map(f func(vaultID principal.Principal, cfg *Config) error) error {
	return storage.Pool.VaultConfigs.NewFetchCursor().Map(func(key []byte, value []byte) error {
		vaultID, err := principal.FromBytes(key)
		if err != nil {
			return err
		}
		cfg := &Config{}
		err = codec.Unmarshal(value, cfg)
		if err != nil {
			return err
		}
		return f(vaultID, cfg)
	})
}

// Summary - one row of the admin vault listing
type Summary struct {
	VaultID   principal.Principal
	Owner     []byte
	Plan      Plan
	Status    Status
	BytesUsed uint64
	CreatedAt uint64
	ExpiresAt uint64
}

// List - page through all vaults in key order
func List(offset uint64, limit int) ([]Summary, error) {
	if limit <= 0 {
		return nil, fault.InvalidCount
	}
	summaries := []Summary{}
	skip := offset
	err := Map(func(vaultID principal.Principal, cfg *Config) error {
		if skip > 0 {
			skip -= 1
			return nil
		}
		if len(summaries) >= limit {
			return errListFull
		}
		summaries = append(summaries, Summary{
			VaultID:   vaultID,
			Owner:     cfg.Owner,
			Plan:      cfg.Plan,
			Status:    cfg.Status,
			BytesUsed: cfg.BytesUsed,
			CreatedAt: cfg.CreatedAt,
			ExpiresAt: cfg.ExpiresAt,
		})
		return nil
	})
	if errListFull == err {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// sentinel to stop the listing scan early
var errListFull = fault.ProcessError("list full")
