// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package metrics - engine-wide counters held in a single cell
package metrics

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/storage"
)

// Metrics - the persisted snapshot
type Metrics struct {
	TotalVaults      uint64 `cbor:"1,keyasint"`
	ActiveVaults     uint64 `cbor:"2,keyasint"`
	UnlockedVaults   uint64 `cbor:"3,keyasint"`
	NeedSetupVaults  uint64 `cbor:"4,keyasint"`
	ExpiredVaults    uint64 `cbor:"5,keyasint"`
	StorageUsedBytes uint64 `cbor:"6,keyasint"`
	InvitesToday     uint64 `cbor:"7,keyasint"`
	InvitesClaimed   uint64 `cbor:"8,keyasint"`
	SchedulerLastRun uint64 `cbor:"9,keyasint"`
}

// Get - read the current snapshot
//
// a never-written cell reads as the zero snapshot
func Get() Metrics {
	value, found := storage.Pool.MetricsCell.Get()
	if !found {
		return Metrics{}
	}
	var m Metrics
	err := codec.Unmarshal(value, &m)
	logger.PanicIfError("metrics.Get", err)
	return m
}

// Update - read-modify-write the snapshot
func Update(f func(m *Metrics)) Metrics {
	m := Get()
	f(&m)
	value, err := codec.Marshal(m)
	logger.PanicIfError("metrics.Update", err)
	storage.Pool.MetricsCell.Put(value)
	return m
}
