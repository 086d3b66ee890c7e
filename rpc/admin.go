// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/billing"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/metrics"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
	"github.com/keeper-vault/keeperd/settings"
	"github.com/keeper-vault/keeperd/vault"
)

// Admin - type for the RPC
type Admin struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// AdminInitArguments - arguments for RPC request
type AdminInitArguments struct {
	Admin                string `json:"admin"`
	Scheduler            string `json:"scheduler"`
	MinResourceThreshold uint64 `json:"minResourceThreshold"`
}

// AdminInitReply - results from RPC request
type AdminInitReply struct {
	Initialised bool `json:"initialised"`
}

// Init - one-time binding of the control principals
//
// the first call is the bootstrap and is open; any later call fails
// inside settings with already initialised
func (a *Admin) Init(arguments *AdminInitArguments, reply *AdminInitReply) error {
	admin, err := principal.FromBase58(arguments.Admin)
	if err != nil {
		return err
	}
	scheduler, err := principal.FromBase58(arguments.Scheduler)
	if err != nil {
		return err
	}

	err = settings.Init(admin, scheduler, arguments.MinResourceThreshold)
	if err != nil {
		return err
	}
	a.Log.Warn("init: control principals bound")

	reply.Initialised = true
	return nil
}

// AdminMetricsArguments - arguments for RPC request
type AdminMetricsArguments struct {
	Caller string `json:"caller"`
}

// AdminMetricsReply - results from RPC request
type AdminMetricsReply struct {
	TotalVaults      uint64 `json:"totalVaults"`
	ActiveVaults     uint64 `json:"activeVaults"`
	UnlockedVaults   uint64 `json:"unlockedVaults"`
	NeedSetupVaults  uint64 `json:"needSetupVaults"`
	ExpiredVaults    uint64 `json:"expiredVaults"`
	StorageUsedBytes uint64 `json:"storageUsedBytes"`
	InvitesToday     uint64 `json:"invitesToday"`
	InvitesClaimed   uint64 `json:"invitesClaimed"`
	SchedulerLastRun uint64 `json:"schedulerLastRun"`
}

// Metrics - the engine-wide counter snapshot
func (a *Admin) Metrics(arguments *AdminMetricsArguments, reply *AdminMetricsReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := guard.Admin(caller); err != nil {
		return err
	}

	m := metrics.Get()
	reply.TotalVaults = m.TotalVaults
	reply.ActiveVaults = m.ActiveVaults
	reply.UnlockedVaults = m.UnlockedVaults
	reply.NeedSetupVaults = m.NeedSetupVaults
	reply.ExpiredVaults = m.ExpiredVaults
	reply.StorageUsedBytes = m.StorageUsedBytes
	reply.InvitesToday = m.InvitesToday
	reply.InvitesClaimed = m.InvitesClaimed
	reply.SchedulerLastRun = m.SchedulerLastRun
	return nil
}

// BillingRecord - one billing log row
type BillingRecord struct {
	Timestamp uint64 `json:"timestamp"`
	VaultId   string `json:"vaultId"`
	TxType    string `json:"txType"`
	Amount    uint64 `json:"amount"`
	TxHash    string `json:"txHash"`
}

// AdminBillingArguments - arguments for RPC request
type AdminBillingArguments struct {
	Caller string `json:"caller"`
	Offset uint64 `json:"offset"`
	Limit  int    `json:"limit"`
}

// AdminBillingReply - results from RPC request
type AdminBillingReply struct {
	Entries []BillingRecord `json:"entries"`
	Total   uint64          `json:"total"`
}

// Billing - page through the append-only billing log
func (a *Admin) Billing(arguments *AdminBillingArguments, reply *AdminBillingReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := guard.Admin(caller); err != nil {
		return err
	}

	entries, err := billing.List(arguments.Offset, arguments.Limit)
	if err != nil {
		return err
	}
	records := make([]BillingRecord, 0, len(entries))
	for _, e := range entries {
		record := BillingRecord{
			Timestamp: e.Timestamp,
			TxType:    e.TxType.String(),
			Amount:    e.Amount,
			TxHash:    e.LedgerTxHash,
		}
		if vaultID, err := principal.FromBytes(e.VaultID); nil == err {
			record.VaultId = vaultID.String()
		}
		records = append(records, record)
	}
	reply.Entries = records
	reply.Total = billing.Count()
	return nil
}

// VaultSummaryRecord - one row of the vault listing
type VaultSummaryRecord struct {
	VaultId   string `json:"vaultId"`
	Owner     string `json:"owner"`
	Plan      string `json:"plan"`
	Status    string `json:"status"`
	BytesUsed uint64 `json:"bytesUsed"`
	CreatedAt uint64 `json:"createdAt"`
	ExpiresAt uint64 `json:"expiresAt"`
}

// AdminVaultsArguments - arguments for RPC request
type AdminVaultsArguments struct {
	Caller string `json:"caller"`
	Offset uint64 `json:"offset"`
	Limit  int    `json:"limit"`
}

// AdminVaultsReply - results from RPC request
type AdminVaultsReply struct {
	Vaults []VaultSummaryRecord `json:"vaults"`
}

// Vaults - page through all vaults in key order
func (a *Admin) Vaults(arguments *AdminVaultsArguments, reply *AdminVaultsReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := guard.Admin(caller); err != nil {
		return err
	}

	summaries, err := vault.List(arguments.Offset, arguments.Limit)
	if err != nil {
		return err
	}
	records := make([]VaultSummaryRecord, 0, len(summaries))
	for _, s := range summaries {
		record := VaultSummaryRecord{
			VaultId:   s.VaultID.String(),
			Plan:      s.Plan.String(),
			Status:    s.Status.String(),
			BytesUsed: s.BytesUsed,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		}
		if owner, err := principal.FromBytes(s.Owner); nil == err {
			record.Owner = owner.String()
		}
		records = append(records, record)
	}
	reply.Vaults = records
	return nil
}
