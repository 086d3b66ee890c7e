// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package settings - global engine configuration cells
//
// the admin and scheduler principals and the minimum resource
// threshold are written exactly once at first initialisation and are
// read-only thereafter
package settings

import (
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

// Init - store the global configuration
//
// fails if any of the cells already hold a value
func Init(admin principal.Principal, scheduler principal.Principal, minResourceThreshold uint64) error {
	if admin.IsZero() || scheduler.IsZero() {
		return fault.InvalidPrincipal
	}
	if storage.Pool.AdminCell.IsSet() {
		return fault.AlreadyInitialised
	}
	storage.Pool.AdminCell.Put(admin.Bytes())
	storage.Pool.SchedulerCell.Put(scheduler.Bytes())
	storage.Pool.ThresholdCell.PutN(minResourceThreshold)
	return nil
}

// IsInitialised - check if Init has run
func IsInitialised() bool {
	return storage.Pool.AdminCell.IsSet()
}

// Admin - the configured admin principal
func Admin() (principal.Principal, error) {
	value, found := storage.Pool.AdminCell.Get()
	if !found {
		return nil, fault.NotInitialised
	}
	return principal.FromBytes(value)
}

// Scheduler - the configured scheduler principal
func Scheduler() (principal.Principal, error) {
	value, found := storage.Pool.SchedulerCell.Get()
	if !found {
		return nil, fault.NotInitialised
	}
	return principal.FromBytes(value)
}

// MinResourceThreshold - the configured minimum operational resource level
func MinResourceThreshold() uint64 {
	return storage.Pool.ThresholdCell.GetN()
}

// CursorGet - read the generic pagination cursor
func CursorGet() uint64 {
	return storage.Pool.CursorCell.GetN()
}

// CursorSet - overwrite the cursor
func CursorSet(value uint64) {
	storage.Pool.CursorCell.PutN(value)
}

// CursorIncrement - advance the cursor returning the new value
func CursorIncrement() uint64 {
	value := storage.Pool.CursorCell.GetN() + 1
	storage.Pool.CursorCell.PutN(value)
	return value
}
