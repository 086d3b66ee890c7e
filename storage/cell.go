// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/bitmark-inc/logger"
)

// CellHandle - a single-slot cell over one region
//
// the region holds exactly one value; Put atomically replaces it
// under the same write barrier as all other containers
type CellHandle struct {
	prefix byte
	access Access
}

// the fixed key of the single slot
func (c *CellHandle) key() []byte {
	return []byte{c.prefix}
}

// Put - replace the cell value
func (c *CellHandle) Put(value []byte) {
	if nil == c.access {
		logger.Panic("cell.Put nil access")
		return
	}
	c.access.Put(c.key(), value)
}

// PutN - replace the cell value with a big endian uint64
func (c *CellHandle) PutN(value uint64) {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, value)
	c.Put(buffer)
}

// Get - read the cell value
//
// second return is false when the cell was never written
func (c *CellHandle) Get() ([]byte, bool) {
	if nil == c.access {
		return nil, false
	}
	value, err := c.access.Get(c.key())
	if leveldb.ErrNotFound == err {
		return nil, false
	}
	logger.PanicIfError("cell.Get", err)
	return value, true
}

// GetN - read the cell value as a big endian uint64
//
// returns zero when the cell was never written
func (c *CellHandle) GetN() uint64 {
	value, found := c.Get()
	if !found {
		return 0
	}
	if len(value) < 8 {
		logger.Panicf("cell.GetN truncated record: %x", value)
	}
	return binary.BigEndian.Uint64(value[:8])
}

// Delete - clear the cell
func (c *CellHandle) Delete() {
	if nil == c.access {
		logger.Panic("cell.Delete nil access")
		return
	}
	c.access.Delete(c.key())
}

// IsSet - check if the cell holds a value
func (c *CellHandle) IsSet() bool {
	if nil == c.access {
		return false
	}
	found, err := c.access.Has(c.key())
	logger.PanicIfError("cell.IsSet", err)
	return found
}
