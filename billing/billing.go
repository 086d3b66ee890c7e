// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package billing - the append-only payment record
//
// entries are never mutated or removed; an index issued once refers to
// the same record forever
package billing

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/storage"
)

// TxType - the reason a payment was collected
type TxType uint8

// transaction types
const (
	InitialVaultCreation TxType = iota + 1
	PlanUpgrade
)

func (tx TxType) String() string {
	switch tx {
	case InitialVaultCreation:
		return "initial-vault-creation"
	case PlanUpgrade:
		return "plan-upgrade"
	default:
		return "unknown"
	}
}

// Entry - one billing record
type Entry struct {
	Timestamp        uint64 `cbor:"1,keyasint"`
	VaultID          []byte `cbor:"2,keyasint"`
	TxType           TxType `cbor:"3,keyasint"`
	Amount           uint64 `cbor:"4,keyasint"`
	LedgerTxHash     string `cbor:"5,keyasint"`
	RelatedPrincipal []byte `cbor:"6,keyasint,omitempty"`
}

// Append - add one record returning its index
func Append(entry Entry) uint64 {
	value, err := codec.Marshal(entry)
	logger.PanicIfError("billing.Append", err)
	return storage.Pool.BillingLog.Append(value)
}

// Get - read one record by index
func Get(index uint64) (Entry, error) {
	value, err := storage.Pool.BillingLog.Get(index)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	err = codec.Unmarshal(value, &entry)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List - read up to limit records starting at offset
func List(offset uint64, limit int) ([]Entry, error) {
	entries := []Entry{}
	err := storage.Pool.BillingLog.Range(offset, limit, func(index uint64, value []byte) error {
		var entry Entry
		err := codec.Unmarshal(value, &entry)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count - total records appended so far
func Count() uint64 {
	return storage.Pool.BillingLog.Count()
}
