// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package maintenance - the periodic sweep engine
//
// each sweep runs to completion in its own barrier before the next
// starts; the order is fixed: invites, uploads, lifecycle, audit
// compaction, metrics
package maintenance

import (
	"sync"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/background"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/invite"
	"github.com/keeper-vault/keeperd/lifecycle"
	"github.com/keeper-vault/keeperd/metrics"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/upload"
	"github.com/keeper-vault/keeperd/vault"
)

// interval between self-triggered runs; an external scheduler may
// also trigger runs through the rpc surface
const sweepInterval = 24 * time.Hour

var globalData struct {
	sync.Mutex
	log         *logger.L
	auditCap    int
	auditKeep   int
	background  *background.T
	initialised bool
}

// Initialise - configure the sweeps and start the daily loop
func Initialise(auditCap int, auditKeep int) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}
	globalData.log = logger.New("maintenance")
	globalData.log.Info("initialising…")

	if auditCap <= 0 {
		auditCap = constants.DefaultAuditCap
	}
	if auditKeep <= 0 || auditKeep > auditCap {
		auditKeep = constants.DefaultAuditKeep
	}
	globalData.auditCap = auditCap
	globalData.auditKeep = auditKeep

	globalData.background = background.Start(background.Processes{loop}, nil)
	globalData.initialised = true
	return nil
}

// Finalise - stop the daily loop
func Finalise() {
	globalData.Lock()
	defer globalData.Unlock()
	if !globalData.initialised {
		return
	}
	background.Stop(globalData.background)
	globalData.background = nil
	globalData.initialised = false
}

func loop(args interface{}, shutdown <-chan bool, finished chan<- bool) {
	defer close(finished)
	for {
		select {
		case <-shutdown:
			return
		case <-time.After(sweepInterval):
			_, err := Run()
			if nil != err {
				globalData.log.Errorf("run error: %s", err)
			}
		}
	}
}

// Stats - what one maintenance run did
type Stats struct {
	InvitesExpired     int
	UploadsCollected   int
	VaultsTransitioned int
	VaultsPurged       int
	AuditsCompacted    int
}

// Run - execute all sweeps in order
func Run() (Stats, error) {
	globalData.Lock()
	defer globalData.Unlock()

	stats := Stats{}

	// 1: expire invitations
	trx, err := storage.NewDBTransaction()
	if err != nil {
		return stats, err
	}
	stats.InvitesExpired, err = invite.ExpireSweep()
	if err != nil {
		trx.Abort()
		return stats, err
	}
	if err := trx.Commit(); err != nil {
		return stats, err
	}

	// 2: collect stale uploads
	trx, err = storage.NewDBTransaction()
	if err != nil {
		return stats, err
	}
	stats.UploadsCollected, err = upload.GCSweep()
	if err != nil {
		trx.Abort()
		return stats, err
	}
	if err := trx.Commit(); err != nil {
		return stats, err
	}

	// 3: advance vault lifecycles
	transitioned, purged, err := advanceSweep()
	if err != nil {
		return stats, err
	}
	stats.VaultsTransitioned = transitioned
	stats.VaultsPurged = purged

	// 4: compact long audit trails
	stats.AuditsCompacted, err = compactSweep()
	if err != nil {
		return stats, err
	}

	// 5: recompute metrics and stamp the run
	if err := recomputeMetrics(); err != nil {
		return stats, err
	}

	if nil != globalData.log {
		globalData.log.Infof("run: %+v", stats)
	}
	return stats, nil
}

// apply every lifecycle edge that fires purely on time
func advanceSweep() (int, int, error) {
	now := clock.Now()

	type change struct {
		vaultID principal.Principal
		cfg     *vault.Config
		target  vault.Status
		purge   bool
	}
	changes := []change{}

	err := vault.Map(func(vaultID principal.Principal, cfg *vault.Config) error {
		switch cfg.Status {
		case vault.Active:
			if now >= cfg.ExpiresAt {
				changes = append(changes, change{vaultID, cfg, vault.GraceMaster, false})
			}
		case vault.GraceMaster:
			if now-cfg.StatusChangedAt >= constants.GraceMasterPeriod {
				changes = append(changes, change{vaultID, cfg, vault.GraceHeir, false})
			}
		case vault.GraceHeir:
			if now-cfg.StatusChangedAt >= constants.GraceHeirPeriod &&
				!cfg.QuorumMet(vault.GetApprovals(vaultID)) {
				changes = append(changes, change{vaultID, cfg, vault.Deleted, true})
			}
		case vault.Unlockable:
			if now-cfg.UnlockedAt >= constants.UnlockWindow {
				changes = append(changes, change{vaultID, cfg, vault.Expired, false})
			}
		case vault.Expired:
			if now-cfg.StatusChangedAt >= constants.PurgePeriod {
				changes = append(changes, change{vaultID, cfg, vault.Deleted, true})
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	transitioned := 0
	purged := 0
	for _, c := range changes {
		trx, err := storage.NewDBTransaction()
		if err != nil {
			return transitioned, purged, err
		}
		if c.purge {
			if err := lifecycle.Purge(c.vaultID, c.cfg); err != nil {
				trx.Abort()
				return transitioned, purged, err
			}
			purged += 1
		} else {
			if err := c.cfg.Transition(c.target); err != nil {
				trx.Abort()
				return transitioned, purged, err
			}
			if err := vault.Store(c.vaultID, c.cfg); err != nil {
				trx.Abort()
				return transitioned, purged, err
			}
			if vault.Expired == c.target {
				audit.Append(c.vaultID, audit.VaultExpired, nil)
			}
			transitioned += 1
		}
		if err := trx.Commit(); err != nil {
			return transitioned, purged, err
		}
	}
	return transitioned, purged, nil
}

// truncate audit trails over the configured cap
func compactSweep() (int, error) {
	over := []principal.Principal{}
	err := vault.Map(func(vaultID principal.Principal, cfg *vault.Config) error {
		if audit.Count(vaultID) > globalData.auditCap {
			over = append(over, vaultID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, vaultID := range over {
		trx, err := storage.NewDBTransaction()
		if err != nil {
			return 0, err
		}
		audit.Compact(vaultID, globalData.auditKeep)
		if err := trx.Commit(); err != nil {
			return 0, err
		}
	}
	return len(over), nil
}

// rebuild the counter snapshot from the vault records
func recomputeMetrics() error {
	total := uint64(0)
	active := uint64(0)
	unlocked := uint64(0)
	needSetup := uint64(0)
	expired := uint64(0)
	storageUsed := uint64(0)

	err := vault.Map(func(vaultID principal.Principal, cfg *vault.Config) error {
		total += 1
		storageUsed += cfg.BytesUsed
		switch cfg.Status {
		case vault.Active:
			active += 1
		case vault.Unlockable:
			unlocked += 1
		case vault.NeedSetup, vault.SetupComplete:
			needSetup += 1
		case vault.Expired:
			expired += 1
		}
		return nil
	})
	if err != nil {
		return err
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	metrics.Update(func(m *metrics.Metrics) {
		m.TotalVaults = total
		m.ActiveVaults = active
		m.UnlockedVaults = unlocked
		m.NeedSetupVaults = needSetup
		m.ExpiredVaults = expired
		m.StorageUsedBytes = storageUsed
		m.SchedulerLastRun = clock.Now()
	})
	return trx.Commit()
}
