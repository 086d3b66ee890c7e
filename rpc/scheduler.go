// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/maintenance"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
)

// Scheduler - type for the RPC
type Scheduler struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// SchedulerRunArguments - arguments for RPC request
type SchedulerRunArguments struct {
	Caller string `json:"caller"`
}

// SchedulerRunReply - results from RPC request
type SchedulerRunReply struct {
	InvitesExpired     int `json:"invitesExpired"`
	UploadsCollected   int `json:"uploadsCollected"`
	VaultsTransitioned int `json:"vaultsTransitioned"`
	VaultsPurged       int `json:"vaultsPurged"`
	AuditsCompacted    int `json:"auditsCompacted"`
}

// Run - the daily maintenance sweep
//
// scheduler principal only; the sweep also runs on the internal timer
// so an external trigger is a supplement, not a requirement
func (s *Scheduler) Run(arguments *SchedulerRunArguments, reply *SchedulerRunReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := guard.Scheduler(caller); err != nil {
		return err
	}

	stats, err := maintenance.Run()
	if err != nil {
		return err
	}
	s.Log.Infof("run: %+v", stats)

	reply.InvitesExpired = stats.InvitesExpired
	reply.UploadsCollected = stats.UploadsCollected
	reply.VaultsTransitioned = stats.VaultsTransitioned
	reply.VaultsPurged = stats.VaultsPurged
	reply.AuditsCompacted = stats.AuditsCompacted
	return nil
}
