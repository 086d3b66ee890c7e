// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package codec - the canonical binary encoding
//
// Every value persisted to a storage region passes through this
// package.  Encoding is deterministic CBOR (RFC 8949 core
// deterministic encoding requirements): map keys sorted bytewise,
// shortest-form integers, no indefinite lengths.  Records are
// field-tagged maps so the encoded form is stable under schema
// evolution.
package codec

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/keeper-vault/keeperd/fault"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeUnix
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic("codec: cannot build encode mode: " + err.Error())
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic("codec: cannot build decode mode: " + err.Error())
	}
}

// Marshal - encode a record to its canonical bytes
func Marshal(record interface{}) ([]byte, error) {
	data, err := encMode.Marshal(record)
	if err != nil {
		return nil, fault.SerializationError(err.Error())
	}
	return data, nil
}

// Unmarshal - decode canonical bytes into a record
func Unmarshal(data []byte, record interface{}) error {
	err := decMode.Unmarshal(data, record)
	if err != nil {
		return fault.SerializationError(err.Error())
	}
	return nil
}
