// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package principal - opaque external identifiers
//
// Every externally referenced entity exposes a principal: 29 bytes
// drawn from a cryptographic RNG followed by a one byte type tag.
// The text form is Base58 of the raw bytes plus a four byte SHA3-256
// checksum, so identifiers are self-checking and unlinkable.
package principal

import (
	"bytes"
	"crypto/rand"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/keeper-vault/keeperd/fault"
)

// sizes
const (
	BodySize     = 29 // random bytes
	TagSize      = 1
	Size         = BodySize + TagSize
	checksumSize = 4
)

// entity type tags
const (
	TagVault   byte = 0x01
	TagMember  byte = 0x02
	TagInvite  byte = 0x03
	TagContent byte = 0x04
	TagUpload  byte = 0x05
	TagService byte = 0x0f // the engine's own principal
)

// Principal - an opaque external identifier
type Principal []byte

// New - draw a fresh principal of a given type from the system RNG
//
// this is the only suspension point besides the ledger call: the RNG
// read may block until entropy is available
func New(tag byte) (Principal, error) {
	p := make(Principal, Size)
	_, err := rand.Read(p[:BodySize])
	if err != nil {
		return nil, fault.InternalError("rng: %s", err)
	}
	p[BodySize] = tag
	return p, nil
}

// FromBytes - validate raw bytes as a principal
func FromBytes(data []byte) (Principal, error) {
	if len(data) != Size {
		return nil, fault.InvalidPrincipal
	}
	p := make(Principal, Size)
	copy(p, data)
	return p, nil
}

// FromBase58 - decode and checksum-verify the text form
func FromBase58(text string) (Principal, error) {
	decoded, err := base58.Decode(text)
	if err != nil {
		return nil, fault.InvalidPrincipal
	}
	if len(decoded) != Size+checksumSize {
		return nil, fault.InvalidPrincipal
	}
	checksum := sha3.Sum256(decoded[:Size])
	if !bytes.Equal(checksum[:checksumSize], decoded[Size:]) {
		return nil, fault.InvalidPrincipal
	}
	return FromBytes(decoded[:Size])
}

// Bytes - raw bytes, used as region keys
func (p Principal) Bytes() []byte {
	return []byte(p)
}

// Tag - the entity type tag
func (p Principal) Tag() byte {
	if len(p) != Size {
		return 0
	}
	return p[BodySize]
}

// IsZero - an unset principal
func (p Principal) IsZero() bool {
	return len(p) == 0
}

// Equal - bytewise comparison
func (p Principal) Equal(q Principal) bool {
	return bytes.Equal(p, q)
}

// String - the checksummed Base58 text form
func (p Principal) String() string {
	if len(p) != Size {
		return ""
	}
	buffer := make([]byte, Size, Size+checksumSize)
	copy(buffer, p)
	checksum := sha3.Sum256(buffer)
	buffer = append(buffer, checksum[:checksumSize]...)
	return base58.Encode(buffer)
}

// MarshalText - for logging and external responses
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText - accept the checksummed text form
func (p *Principal) UnmarshalText(text []byte) error {
	decoded, err := FromBase58(string(text))
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
