// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package vault

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

// Approvals - per-vault unlock approval counters
type Approvals struct {
	Heirs     uint32 `cbor:"1,keyasint"`
	Witnesses uint32 `cbor:"2,keyasint"`
}

// GetApprovals - read the counters; a missing record reads as zero
func GetApprovals(vaultID principal.Principal) Approvals {
	value := storage.Pool.Approvals.Get(vaultID.Bytes())
	if nil == value {
		return Approvals{}
	}
	var a Approvals
	err := codec.Unmarshal(value, &a)
	logger.PanicIfError("vault.GetApprovals", err)
	return a
}

// PutApprovals - persist the counters
func PutApprovals(vaultID principal.Principal, a Approvals) {
	value, err := codec.Marshal(a)
	logger.PanicIfError("vault.PutApprovals", err)
	storage.Pool.Approvals.Put(vaultID.Bytes(), value)
}

// RemoveApprovals - used by the vault deletion cascade
func RemoveApprovals(vaultID principal.Principal) {
	storage.Pool.Approvals.Delete(vaultID.Bytes())
}

// QuorumMet - compare approvals against the vault's thresholds
func (cfg *Config) QuorumMet(a Approvals) bool {
	return a.Heirs >= cfg.HeirThreshold && a.Witnesses >= cfg.WitnessThreshold
}
