// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/fault"
)

// LogHandle - an append-only log over one region
//
// the region holds a count slot and one entry per index; entries are
// never mutated or removed, so for two observations the earlier log
// is always a prefix of the later one
type LogHandle struct {
	prefix byte
	access Access
}

// sub-keys within the log region
const (
	logCountTag = 'N'
	logEntryTag = 'E'
)

func (l *LogHandle) countKey() []byte {
	return []byte{l.prefix, logCountTag}
}

func (l *LogHandle) entryKey(index uint64) []byte {
	key := make([]byte, 10)
	key[0] = l.prefix
	key[1] = logEntryTag
	binary.BigEndian.PutUint64(key[2:], index)
	return key
}

// Count - number of entries appended so far
func (l *LogHandle) Count() uint64 {
	if nil == l.access {
		return 0
	}
	value, err := l.access.Get(l.countKey())
	if leveldb.ErrNotFound == err {
		return 0
	}
	logger.PanicIfError("log.Count", err)
	if len(value) < 8 {
		logger.Panicf("log.Count truncated record: %x", value)
	}
	return binary.BigEndian.Uint64(value[:8])
}

// Append - add one entry, returning its index
func (l *LogHandle) Append(value []byte) uint64 {
	if nil == l.access {
		logger.Panic("log.Append nil access")
		return 0
	}
	index := l.Count()
	l.access.Put(l.entryKey(index), value)

	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, index+1)
	l.access.Put(l.countKey(), buffer)
	return index
}

// Get - read one entry by index
func (l *LogHandle) Get(index uint64) ([]byte, error) {
	if nil == l.access {
		return nil, fault.StorageError("log not initialised")
	}
	value, err := l.access.Get(l.entryKey(index))
	if leveldb.ErrNotFound == err {
		return nil, fault.BillingRecordNotFound
	}
	if err != nil {
		return nil, fault.StorageError(err.Error())
	}
	return value, nil
}

// Range - read up to limit entries starting at offset
func (l *LogHandle) Range(offset uint64, limit int, f func(index uint64, value []byte) error) error {
	if limit <= 0 {
		return fault.InvalidCount
	}
	count := l.Count()
	for i := offset; i < count && limit > 0; i++ {
		value, err := l.Get(i)
		if err != nil {
			return err
		}
		err = f(i, value)
		if err != nil {
			return err
		}
		limit -= 1
	}
	return nil
}
