// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package vault_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

const (
	databaseFileName = "test.leveldb"
)

func removeFiles() {
	os.RemoveAll(databaseFileName)
}

func setup(t *testing.T) {
	removeFiles()
	clock.Set(1_700_000_000)
	err := storage.Initialise(databaseFileName)
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	storage.Finalise()
	clock.Reset()
	removeFiles()
}

func TestMain(m *testing.M) {
	removeFiles()
	rc := m.Run()
	removeFiles()
	os.Exit(rc)
}

func TestPlanTable(t *testing.T) {
	assert.Equal(t, uint64(5*1024*1024), vault.Basic.Quota(), "wrong basic quota")
	assert.Equal(t, uint64(250*1024*1024), vault.Titan.Quota(), "wrong titan quota")
	assert.Equal(t, uint64(600_000_000), vault.Basic.Price(), "wrong basic price")
	assert.Equal(t, uint64(9_600_000_000), vault.Titan.Price(), "wrong titan price")

	assert.True(t, vault.Deluxe.Valid(), "deluxe invalid")
	assert.False(t, vault.Plan(0).Valid(), "zero plan valid")
	assert.False(t, vault.Plan(99).Valid(), "out of range plan valid")

	p, err := vault.PlanFromString("premium")
	assert.Nil(t, err, "parse error")
	assert.Equal(t, vault.Premium, p, "wrong parsed plan")

	_, err = vault.PlanFromString("platinum")
	assert.Equal(t, fault.InvalidInput, err, "wrong parse error")
}

func TestStatusEdges(t *testing.T) {
	allowed := []struct {
		from vault.Status
		to   vault.Status
	}{
		{vault.Draft, vault.NeedSetup},
		{vault.NeedSetup, vault.SetupComplete},
		{vault.SetupComplete, vault.Active},
		{vault.Active, vault.GraceMaster},
		{vault.Active, vault.Unlockable},
		{vault.GraceMaster, vault.GraceHeir},
		{vault.GraceHeir, vault.Unlockable},
		{vault.GraceHeir, vault.Deleted},
		{vault.Unlockable, vault.Expired},
		{vault.Expired, vault.Deleted},
	}
	for _, edge := range allowed {
		assert.True(t, edge.from.CanTransition(edge.to),
			"edge rejected: %s → %s", edge.from, edge.to)
	}

	forbidden := []struct {
		from vault.Status
		to   vault.Status
	}{
		{vault.NeedSetup, vault.Active},
		{vault.Active, vault.NeedSetup}, // no reverse edges
		{vault.Unlockable, vault.Active},
		{vault.Deleted, vault.Draft},
		{vault.Draft, vault.Active},
		{vault.Expired, vault.Unlockable},
	}
	for _, edge := range forbidden {
		assert.False(t, edge.from.CanTransition(edge.to),
			"edge allowed: %s → %s", edge.from, edge.to)
	}
}

func TestConfigTransition(t *testing.T) {
	setup(t)
	defer teardown(t)

	cfg := &vault.Config{
		Status:    vault.Active,
		CreatedAt: 1_600_000_000,
	}

	err := cfg.Transition(vault.Unlockable)
	assert.Nil(t, err, "transition error")
	assert.Equal(t, vault.Unlockable, cfg.Status, "wrong status")
	assert.Equal(t, uint64(1_700_000_000), cfg.UnlockedAt, "unlock time not stamped")
	assert.Equal(t, uint64(1_700_000_000), cfg.StatusChangedAt, "change time not stamped")

	err = cfg.Transition(vault.Active)
	assert.Equal(t, fault.InvalidStateTransition, err, "reverse edge allowed")
}

func TestStoreFetch(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, _ := principal.New(principal.TagVault)
	owner, _ := principal.New(principal.TagMember)

	cfg := &vault.Config{
		Owner:        owner.Bytes(),
		Plan:         vault.Standard,
		Status:       vault.NeedSetup,
		Name:         "family vault",
		StorageQuota: vault.Standard.Quota(),
		CreatedAt:    clock.Now(),
		UpdatedAt:    clock.Now(),
		ExpiresAt:    clock.Now() + 10*365*24*60*60,
	}

	err := vault.Store(vaultID, cfg)
	assert.Nil(t, err, "store error")
	assert.True(t, vault.Has(vaultID), "vault missing")

	fetched, err := vault.Fetch(vaultID)
	assert.Nil(t, err, "fetch error")
	assert.Equal(t, cfg, fetched, "wrong record")

	other, _ := principal.New(principal.TagVault)
	_, err = vault.Fetch(other)
	assert.Equal(t, fault.VaultNotFound, err, "wrong missing error")

	vault.Remove(vaultID)
	assert.False(t, vault.Has(vaultID), "vault not removed")
}

func TestList(t *testing.T) {
	setup(t)
	defer teardown(t)

	owner, _ := principal.New(principal.TagMember)

	for i := 0; i < 5; i += 1 {
		vaultID, _ := principal.New(principal.TagVault)
		err := vault.Store(vaultID, &vault.Config{
			Owner:  owner.Bytes(),
			Plan:   vault.Basic,
			Status: vault.Active,
		})
		assert.Nil(t, err, "store error")
	}

	all, err := vault.List(0, 10)
	assert.Nil(t, err, "list error")
	assert.Equal(t, 5, len(all), "wrong count")

	page, err := vault.List(3, 10)
	assert.Nil(t, err, "list error")
	assert.Equal(t, 2, len(page), "wrong offset page")
	assert.Equal(t, all[3:], page, "wrong page content")

	page, err = vault.List(0, 2)
	assert.Nil(t, err, "list error")
	assert.Equal(t, all[:2], page, "wrong limited page")
}

func TestApprovals(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, _ := principal.New(principal.TagVault)

	a := vault.GetApprovals(vaultID)
	assert.Equal(t, vault.Approvals{}, a, "wrong initial approvals")

	a.Heirs += 1
	vault.PutApprovals(vaultID, a)
	a.Witnesses += 1
	vault.PutApprovals(vaultID, a)

	a = vault.GetApprovals(vaultID)
	assert.Equal(t, vault.Approvals{Heirs: 1, Witnesses: 1}, a, "wrong approvals")

	cfg := &vault.Config{HeirThreshold: 1, WitnessThreshold: 2}
	assert.False(t, cfg.QuorumMet(a), "quorum met early")

	a.Witnesses += 1
	assert.True(t, cfg.QuorumMet(a), "quorum not met")

	vault.RemoveApprovals(vaultID)
	assert.Equal(t, vault.Approvals{}, vault.GetApprovals(vaultID), "approvals not removed")
}
