// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/fault"
)

type record struct {
	Owner     []byte `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint,omitempty"`
	Count     uint64 `cbor:"3,keyasint"`
	Timestamp uint64 `cbor:"4,keyasint"`
}

func TestRoundTrip(t *testing.T) {
	in := record{
		Owner:     []byte{0x01, 0x02, 0x03},
		Name:      "safe",
		Count:     42,
		Timestamp: 1_700_000_000,
	}
	data, err := codec.Marshal(in)
	assert.Nil(t, err, "marshal error")

	out := record{}
	err = codec.Unmarshal(data, &out)
	assert.Nil(t, err, "unmarshal error")
	assert.Equal(t, in, out, "round trip changed the record")
}

func TestDeterministic(t *testing.T) {
	in := record{Owner: []byte{0xff}, Count: 7}

	first, err := codec.Marshal(in)
	assert.Nil(t, err, "marshal error")
	second, err := codec.Marshal(in)
	assert.Nil(t, err, "marshal error")
	assert.Equal(t, first, second, "encoding not deterministic")
}

func TestDecodeGarbage(t *testing.T) {
	out := record{}
	err := codec.Unmarshal([]byte{0xff, 0x00, 0x13}, &out)
	assert.True(t, fault.IsErrProcess(err), "wrong error class: %v", err)
}
