// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package vault

import (
	"github.com/keeper-vault/keeperd/fault"
)

// Plan - subscription tier
type Plan uint8

// available tiers
const (
	Basic Plan = iota + 1
	Standard
	Premium
	Deluxe
	Titan
)

type planInfo struct {
	name  string
	quota uint64 // bytes
	price uint64 // ledger base units
}

var planTable = map[Plan]planInfo{
	Basic:    {"basic", 5 * 1024 * 1024, 600_000_000},
	Standard: {"standard", 10 * 1024 * 1024, 1_200_000_000},
	Premium:  {"premium", 50 * 1024 * 1024, 2_400_000_000},
	Deluxe:   {"deluxe", 100 * 1024 * 1024, 4_800_000_000},
	Titan:    {"titan", 250 * 1024 * 1024, 9_600_000_000},
}

func (p Plan) String() string {
	if info, ok := planTable[p]; ok {
		return info.name
	}
	return "unknown"
}

// Valid - check the tier exists
func (p Plan) Valid() bool {
	_, ok := planTable[p]
	return ok
}

// Quota - storage allowance in bytes
func (p Plan) Quota() uint64 {
	return planTable[p].quota
}

// Price - full term price in ledger base units
func (p Plan) Price() uint64 {
	return planTable[p].price
}

// PlanFromString - parse a tier name
func PlanFromString(name string) (Plan, error) {
	for p, info := range planTable {
		if info.name == name {
			return p, nil
		}
	}
	return 0, fault.InvalidInput
}
