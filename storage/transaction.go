// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

// Transaction - the all-or-nothing write barrier
//
// an engine operation that mutates more than one collection opens a
// transaction, performs its writes through the normal handles, then
// commits; either every buffered write reaches the database or none
// does
type Transaction interface {
	Begin() error
	Commit() error
	Abort()
	InUse() bool
}

type transactionData struct {
	access Access
}

func newTransaction(access Access) Transaction {
	return &transactionData{
		access: access,
	}
}

func (t *transactionData) Begin() error {
	return t.access.Begin()
}

func (t *transactionData) Commit() error {
	return t.access.Commit()
}

func (t *transactionData) Abort() {
	t.access.Abort()
}

func (t *transactionData) InUse() bool {
	return t.access.InUse()
}
