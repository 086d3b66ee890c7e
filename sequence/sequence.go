// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sequence - internal key assignment for dual-ID collections
//
// collections that are iterated in creation order key their records by
// a compact monotonic 64 bit id and keep a secondary map from the
// external principal bytes to that id; both maps are written in the
// same barrier so a reader never observes one without the other
package sequence

import (
	"encoding/binary"

	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
)

// Sequence - a persisted monotonic counter
//
// the cell holds the next unissued id; ids are never reused even when
// the record issued under one is later deleted
type Sequence struct {
	cell *storage.CellHandle
}

// New - bind a counter to its cell
func New(cell *storage.CellHandle) *Sequence {
	return &Sequence{
		cell: cell,
	}
}

// Next - issue the next id
//
// returns the stored value and persists value+1 in the same barrier as
// the caller's record writes
func (s *Sequence) Next() uint64 {
	id := s.cell.GetN()
	s.cell.PutN(id + 1)
	return id
}

// Current - the next id that would be issued
func (s *Sequence) Current() uint64 {
	return s.cell.GetN()
}

// Key - the big endian primary map key for an internal id
func Key(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// Index - secondary map: external principal bytes → internal id
type Index struct {
	pool *storage.PoolHandle
}

// NewIndex - bind an index to its region
func NewIndex(pool *storage.PoolHandle) *Index {
	return &Index{
		pool: pool,
	}
}

// Put - record the external → internal mapping
func (ix *Index) Put(external principal.Principal, id uint64) {
	ix.pool.PutN(external.Bytes(), id)
}

// Lookup - resolve an external id
//
// second return is false when the external id is unknown
func (ix *Index) Lookup(external principal.Principal) (uint64, bool) {
	return ix.pool.GetN(external.Bytes())
}

// Delete - remove the mapping
func (ix *Index) Delete(external principal.Principal) {
	ix.pool.Delete(external.Bytes())
}
