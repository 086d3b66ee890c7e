// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"math/big"

	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/keeper-vault/keeperd/fault"
)

// FetchCursor - streaming iteration over a region's key range
type FetchCursor struct {
	pool     *PoolHandle
	maxRange util.Range
}

// NewFetchCursor - initialise a cursor to the start of a region
func (p *PoolHandle) NewFetchCursor() *FetchCursor {
	return &FetchCursor{
		pool: p,
		maxRange: util.Range{
			Start: []byte{p.prefix}, // included in the range
			Limit: p.limit,          // excluded from the range
		},
	}
}

// Seek - move cursor to a specific key position
func (cursor *FetchCursor) Seek(key []byte) *FetchCursor {
	cursor.maxRange.Start = cursor.pool.prefixKey(key)
	return cursor
}

// to increment the key
var one = big.NewInt(1)

// Fetch - return up to count elements advancing the cursor
func (cursor *FetchCursor) Fetch(count int) ([]Element, error) {
	if nil == cursor {
		return nil, fault.InvalidCursor
	}
	if count <= 0 {
		return nil, fault.InvalidCount
	}

	if nil == cursor.pool.access {
		return nil, nil
	}

	iter := cursor.pool.access.Iterator(&cursor.maxRange)

	results := make([]Element, 0, count)
	n := 0
iterating:
	for iter.Next() {

		// returned slices are only valid until the next call to Next
		key := iter.Key()
		value := iter.Value()

		dataKey := make([]byte, len(key)-1) // strip the prefix
		copy(dataKey, key[1:])

		dataValue := make([]byte, len(value))
		copy(dataValue, value)

		results = append(results, Element{
			Key:   dataKey,
			Value: dataValue,
		})
		n += 1
		if n >= count {
			break iterating
		}
	}
	iter.Release()
	err := iter.Error()

	if n > 0 {
		// next start key is last key + 1, right aligned so that
		// leading zero bytes of fixed-width keys are preserved
		keyLen := len(results[n-1].Key)
		b := big.Int{}
		next := b.SetBytes(results[n-1].Key).Add(&b, one).Bytes()
		if len(next) > keyLen { // carry widened the key
			keyLen = len(next)
		}
		start := make([]byte, keyLen+1)
		start[0] = cursor.pool.prefix
		copy(start[keyLen+1-len(next):], next)
		cursor.maxRange.Start = start
	}
	return results, err
}

// Map - run a function on all elements in the range
//
// the scan streams directly from the database; no list is
// materialised and uncommitted batch writes are not observed
func (cursor *FetchCursor) Map(f func(key []byte, value []byte) error) error {
	if nil == cursor {
		return fault.InvalidCursor
	}

	if nil == cursor.pool.access {
		return nil
	}

	iter := cursor.pool.access.Iterator(&cursor.maxRange)

	var err error
iterating:
	for iter.Next() {

		// returned slices are only valid until the next call to Next
		key := iter.Key()
		value := iter.Value()

		dataKey := make([]byte, len(key)-1) // strip the prefix
		copy(dataKey, key[1:])

		dataValue := make([]byte, len(value))
		copy(dataValue, value)

		err = f(dataKey, dataValue)
		if err != nil {
			break iterating
		}
	}
	iter.Release()
	if nil == err {
		err = iter.Error()
	}
	return err
}
