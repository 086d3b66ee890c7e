// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/keeper-vault/keeperd/fault"
)

// Access - the write barrier over the database
//
// while a transaction is open all writes are buffered in the batch
// and shadowed in the cache; otherwise they go straight to the
// database
type Access interface {
	Abort()
	Begin() error
	Commit() error
	Delete([]byte)
	Get([]byte) ([]byte, error)
	Has([]byte) (bool, error)
	InUse() bool
	Iterator(*ldb_util.Range) iterator.Iterator
	Put([]byte, []byte)
}

type accessData struct {
	sync.Mutex
	inUse bool
	db    *leveldb.DB
	batch *leveldb.Batch
	cache Cache
}

func newAccess(db *leveldb.DB, batch *leveldb.Batch, cache Cache) Access {
	return &accessData{
		inUse: false,
		db:    db,
		batch: batch,
		cache: cache,
	}
}

func (d *accessData) Begin() error {
	d.Lock()
	defer d.Unlock()

	if d.inUse {
		return fault.StorageError("transaction already in use")
	}

	d.batch.Reset()
	d.cache.Clear()
	d.inUse = true
	return nil
}

func (d *accessData) Put(key []byte, value []byte) {
	d.Lock()
	defer d.Unlock()

	if d.inUse {
		d.cache.Set(dbPut, string(key), value)
		d.batch.Put(key, value)
		return
	}
	err := d.db.Put(key, value, nil)
	if err != nil {
		panic("storage: direct put failed: " + err.Error())
	}
}

func (d *accessData) Delete(key []byte) {
	d.Lock()
	defer d.Unlock()

	if d.inUse {
		d.cache.Set(dbDelete, string(key), []byte{})
		d.batch.Delete(key)
		return
	}
	err := d.db.Delete(key, nil)
	if err != nil {
		panic("storage: direct delete failed: " + err.Error())
	}
}

func (d *accessData) Commit() error {
	d.Lock()
	defer d.Unlock()

	if !d.inUse {
		return fault.StorageError("commit outside transaction")
	}

	err := d.db.Write(d.batch, nil)
	d.batch.Reset()
	d.cache.Clear()
	d.inUse = false
	if err != nil {
		return fault.StorageError(err.Error())
	}
	return nil
}

func (d *accessData) Abort() {
	d.Lock()
	defer d.Unlock()

	d.batch.Reset()
	d.cache.Clear()
	d.inUse = false
}

func (d *accessData) Get(key []byte) ([]byte, error) {
	d.Lock()
	defer d.Unlock()

	if d.inUse {
		if value, found := d.cache.Get(string(key)); found {
			return value, nil
		}
		if d.cache.Deleted(string(key)) {
			return nil, leveldb.ErrNotFound
		}
	}
	return d.db.Get(key, nil)
}

func (d *accessData) Has(key []byte) (bool, error) {
	d.Lock()
	defer d.Unlock()

	if d.inUse {
		if _, found := d.cache.Get(string(key)); found {
			return true, nil
		}
		if d.cache.Deleted(string(key)) {
			return false, nil
		}
	}
	return d.db.Has(key, nil)
}

func (d *accessData) Iterator(searchRange *ldb_util.Range) iterator.Iterator {
	return d.db.NewIterator(searchRange, nil)
}

func (d *accessData) InUse() bool {
	d.Lock()
	defer d.Unlock()
	return d.inUse
}
