// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage - the persistence region
//
// One LevelDB database is multiplexed into disjoint regions, one per
// logical collection.  A region is selected by a single stable prefix
// byte on every key; changing a prefix is a breaking change.  Each
// region is exclusively owned by one collection module; cross-module
// reads are permitted, cross-module writes are not.
//
// Three container shapes are provided over a region:
//
//	PoolHandle - ordered map, sorted by key bytes
//	CellHandle - single-slot cell, atomic replace
//	LogHandle  - append-only log, count cell plus indexed entries
//
// Writes performed while a Transaction is open are buffered in a
// LevelDB batch and mirrored into a short-lived cache so the writer
// observes its own mutations; Commit applies the batch atomically so
// an engine operation either commits all of its collection writes or
// none.  Iteration (FetchCursor) reads the database only and does not
// observe uncommitted batch writes.
package storage
