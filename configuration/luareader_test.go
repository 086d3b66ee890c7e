// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeper-vault/keeperd/configuration"
)

type testLedger struct {
	URL     string `gluamapper:"url"`
	Timeout int    `gluamapper:"timeout"`
}

type testConfiguration struct {
	DataDirectory string     `gluamapper:"data_directory"`
	Ledger        testLedger `gluamapper:"ledger"`
	AuditCap      int        `gluamapper:"audit_cap"`
}

const sampleConfiguration = `
local M = {}

M.data_directory = "."

M.ledger = {
    url = "http://127.0.0.1:8640",
    timeout = 30,
}

M.audit_cap = 1000

return M
`

func TestParseConfigurationFile(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "keeperd.conf")
	err := os.WriteFile(fileName, []byte(sampleConfiguration), 0600)
	assert.Nil(t, err, "write error")

	config := &testConfiguration{}
	err = configuration.ParseConfigurationFile(fileName, config)
	assert.Nil(t, err, "parse error")

	assert.Equal(t, ".", config.DataDirectory, "wrong data directory")
	assert.Equal(t, "http://127.0.0.1:8640", config.Ledger.URL, "wrong url")
	assert.Equal(t, 30, config.Ledger.Timeout, "wrong timeout")
	assert.Equal(t, 1000, config.AuditCap, "wrong audit cap")
}

func TestParseMissingFile(t *testing.T) {
	config := &testConfiguration{}
	err := configuration.ParseConfigurationFile("no-such-file.conf", config)
	assert.NotNil(t, err, "missing file parsed")
}
