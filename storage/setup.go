// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/keeper-vault/keeperd/fault"
)

// exported storage regions
//
// the prefix byte is the region ID; the assignment is stable across
// versions and changing one is a breaking change
//
// note all must be exported (i.e. initial capital) or initialisation will panic
type pools struct {
	VaultConfigs   *PoolHandle `prefix:"V"`
	VaultMembers   *PoolHandle `prefix:"M"`
	InviteTokens   *PoolHandle `prefix:"T"`
	InviteLookup   *PoolHandle `prefix:"t"`
	ContentItems   *PoolHandle `prefix:"C"`
	ContentLookup  *PoolHandle `prefix:"c"`
	ContentLists   *PoolHandle `prefix:"L"`
	UploadSessions *PoolHandle `prefix:"U"`
	UploadLookup   *PoolHandle `prefix:"u"`
	UploadChunks   *PoolHandle `prefix:"K"`
	AuditLogs      *PoolHandle `prefix:"A"`
	Approvals      *PoolHandle `prefix:"R"`
	BillingLog     *LogHandle  `prefix:"B"`
	MetricsCell    *CellHandle `prefix:"m"`
	AdminCell      *CellHandle `prefix:"a"`
	SchedulerCell  *CellHandle `prefix:"s"`
	ThresholdCell  *CellHandle `prefix:"r"`
	CursorCell     *CellHandle `prefix:"x"`
	InviteCounter  *CellHandle `prefix:"1"`
	ContentCounter *CellHandle `prefix:"2"`
	UploadCounter  *CellHandle `prefix:"3"`
	TestData       *PoolHandle `prefix:"Z"`
}

// Pool - the set of exported regions
var Pool pools

// for database version
var versionKey = []byte{0x00, 'V', 'E', 'R', 'S', 'I', 'O', 'N'}

const currentDBVersion = 0x100

// holds the database handle
var poolData struct {
	sync.RWMutex
	db     *leveldb.DB
	batch  *leveldb.Batch
	cache  Cache
	access Access
	trx    Transaction
}

// Initialise - open the database and bind every region handle
//
// this must be called before any region is accessed
func Initialise(database string) error {
	poolData.Lock()
	defer poolData.Unlock()

	ok := false

	if nil != poolData.db {
		return fault.AlreadyInitialised
	}

	defer func() {
		if !ok {
			dbClose()
		}
	}()

	db, version, err := getDB(database)
	if nil != err {
		return err
	}
	poolData.db = db

	// ensure no database downgrade
	if version > currentDBVersion {
		return fmt.Errorf("database version: %d > current version: %d", version, currentDBVersion)
	}

	if 0 == version {
		// database was empty so tag as current version
		err = putVersion(db, currentDBVersion)
		if nil != err {
			return err
		}
	}

	poolData.batch = new(leveldb.Batch)
	poolData.cache = newCache()
	poolData.access = newAccess(db, poolData.batch, poolData.cache)
	poolData.trx = newTransaction(poolData.access)

	// this will be a struct type
	poolType := reflect.TypeOf(Pool)

	// get write access by using pointer + Elem()
	poolValue := reflect.ValueOf(&Pool).Elem()

	// scan each field binding its handle
	for i := 0; i < poolType.NumField(); i += 1 {

		fieldInfo := poolType.Field(i)

		prefixTag := fieldInfo.Tag.Get("prefix")
		if 1 != len(prefixTag) {
			return fmt.Errorf("pool: %v has invalid prefix: %q", fieldInfo, prefixTag)
		}

		prefix := prefixTag[0]
		limit := []byte(nil)
		if prefix < 255 {
			limit = []byte{prefix + 1}
		}

		switch fieldInfo.Type {
		case reflect.TypeOf((*PoolHandle)(nil)):
			p := &PoolHandle{
				prefix: prefix,
				limit:  limit,
				access: poolData.access,
			}
			poolValue.Field(i).Set(reflect.ValueOf(p))
		case reflect.TypeOf((*CellHandle)(nil)):
			c := &CellHandle{
				prefix: prefix,
				access: poolData.access,
			}
			poolValue.Field(i).Set(reflect.ValueOf(c))
		case reflect.TypeOf((*LogHandle)(nil)):
			l := &LogHandle{
				prefix: prefix,
				access: poolData.access,
			}
			poolValue.Field(i).Set(reflect.ValueOf(l))
		default:
			return fmt.Errorf("pool: %v has unsupported handle type", fieldInfo)
		}
	}

	ok = true // prevent db close
	return nil
}

func dbClose() {
	if nil != poolData.db {
		poolData.db.Close()
		poolData.db = nil
		poolData.access = nil
		poolData.trx = nil
		Pool = pools{}
	}
}

// Finalise - close the database
func Finalise() {
	poolData.Lock()
	dbClose()
	poolData.Unlock()
}

// NewDBTransaction - open the write barrier
func NewDBTransaction() (Transaction, error) {
	poolData.RLock()
	trx := poolData.trx
	poolData.RUnlock()
	if nil == trx {
		return nil, fault.NotInitialised
	}
	err := trx.Begin()
	if nil != err {
		return nil, err
	}
	return trx, nil
}

// return:
//
//	database handle
//	version number
func getDB(name string) (*leveldb.DB, int, error) {
	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: false,
	}

	db, err := leveldb.OpenFile(name, opt)
	if nil != err {
		return nil, 0, err
	}

	versionValue, err := db.Get(versionKey, nil)
	if leveldb.ErrNotFound == err {
		return db, 0, nil
	} else if nil != err {
		db.Close()
		return nil, 0, err
	}

	if 4 != len(versionValue) {
		db.Close()
		return nil, 0, fmt.Errorf("incompatible database version length: expected: %d  actual: %d", 4, len(versionValue))
	}

	version := int(binary.BigEndian.Uint32(versionValue))
	return db, version, nil
}

func putVersion(db *leveldb.DB, version int) error {
	currentVersion := make([]byte, 4)
	binary.BigEndian.PutUint32(currentVersion, uint32(version))

	return db.Put(versionKey, currentVersion, nil)
}
