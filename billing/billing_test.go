// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package billing_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeper-vault/keeperd/billing"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

const (
	databaseFileName = "test.leveldb"
)

func removeFiles() {
	os.RemoveAll(databaseFileName)
}

func setup(t *testing.T) {
	removeFiles()
	err := storage.Initialise(databaseFileName)
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	storage.Finalise()
	removeFiles()
}

func TestMain(m *testing.M) {
	removeFiles()
	rc := m.Run()
	removeFiles()
	os.Exit(rc)
}

func TestBillingAppendOnly(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, _ := principal.New(principal.TagVault)
	payer, _ := principal.New(principal.TagMember)

	assert.Equal(t, uint64(0), billing.Count(), "log not initially empty")

	for i := 0; i < 5; i += 1 {
		index := billing.Append(billing.Entry{
			Timestamp:        uint64(1_700_000_000 + i),
			VaultID:          vaultID.Bytes(),
			TxType:           billing.InitialVaultCreation,
			Amount:           600_000_000,
			LedgerTxHash:     fmt.Sprintf("hash-%d", i),
			RelatedPrincipal: payer.Bytes(),
		})
		assert.Equal(t, uint64(i), index, "wrong index")
	}
	assert.Equal(t, uint64(5), billing.Count(), "wrong count")

	// earlier entries are a stable prefix
	before, err := billing.List(0, 5)
	assert.Nil(t, err, "list error")

	billing.Append(billing.Entry{
		Timestamp:    1_700_000_100,
		VaultID:      vaultID.Bytes(),
		TxType:       billing.PlanUpgrade,
		Amount:       300_000_000,
		LedgerTxHash: "hash-upgrade",
	})

	after, err := billing.List(0, 10)
	assert.Nil(t, err, "list error")
	assert.Equal(t, 6, len(after), "wrong length")
	assert.Equal(t, before, after[:5], "prefix mutated")
	assert.Equal(t, billing.PlanUpgrade, after[5].TxType, "wrong new entry")
}

func TestBillingPagination(t *testing.T) {
	setup(t)
	defer teardown(t)

	for i := 0; i < 8; i += 1 {
		billing.Append(billing.Entry{
			Timestamp:    uint64(i),
			TxType:       billing.InitialVaultCreation,
			Amount:       uint64(i) * 100,
			LedgerTxHash: fmt.Sprintf("hash-%d", i),
		})
	}

	page, err := billing.List(3, 2)
	assert.Nil(t, err, "list error")
	assert.Equal(t, 2, len(page), "wrong page size")
	assert.Equal(t, "hash-3", page[0].LedgerTxHash, "wrong page start")
	assert.Equal(t, "hash-4", page[1].LedgerTxHash, "wrong page end")

	tail, err := billing.List(6, 10)
	assert.Nil(t, err, "list error")
	assert.Equal(t, 2, len(tail), "wrong tail size")
}
