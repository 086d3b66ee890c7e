// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package upload - chunked upload staging
//
// chunks are staged persistently under the session's internal id and
// only become vault content when the finalize step verifies the
// declared checksum; finalize commits everything in one barrier
package upload

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/content"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/sequence"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

// Status - session state
type Status uint8

// session states
const (
	Open Status = iota + 1
	Finalizing
	Committed
	Aborted
)

// Session - one staged upload
type Session struct {
	External     []byte          `cbor:"1,keyasint"`
	VaultID      []byte          `cbor:"2,keyasint"`
	Initiator    []byte          `cbor:"3,keyasint"`
	Kind         content.Kind    `cbor:"4,keyasint"`
	Filename     string          `cbor:"5,keyasint,omitempty"`
	MimeType     string          `cbor:"6,keyasint,omitempty"`
	Title        string          `cbor:"7,keyasint,omitempty"`
	Description  string          `cbor:"8,keyasint,omitempty"`
	DeclaredSize uint64          `cbor:"9,keyasint"`
	ChunkCount   uint32          `cbor:"10,keyasint"`
	Received     map[uint32]bool `cbor:"11,keyasint"`
	Status       Status          `cbor:"12,keyasint"`
	CreatedAt    uint64          `cbor:"13,keyasint"`
}

// Meta - declared upload parameters
type Meta struct {
	Kind         content.Kind
	Filename     string
	MimeType     string
	Title        string
	Description  string
	DeclaredSize uint64
	ChunkCount   uint32
}

func chunkKey(id uint64, index uint32) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key[:8], id)
	binary.BigEndian.PutUint32(key[8:], index)
	return key
}

func store(id uint64, session *Session) error {
	value, err := codec.Marshal(session)
	if err != nil {
		return err
	}
	storage.Pool.UploadSessions.Put(sequence.Key(id), value)
	return nil
}

func fetch(id uint64) (*Session, error) {
	value := storage.Pool.UploadSessions.Get(sequence.Key(id))
	if nil == value {
		return nil, fault.UploadNotFound
	}
	session := &Session{}
	err := codec.Unmarshal(value, session)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func resolve(external principal.Principal) (uint64, *Session, error) {
	id, found := sequence.NewIndex(storage.Pool.UploadLookup).Lookup(external)
	if !found {
		return 0, nil, fault.UploadNotFound
	}
	session, err := fetch(id)
	if err != nil {
		return 0, nil, err
	}
	return id, session, nil
}

// Fetch - read a session by its external id
func Fetch(external principal.Principal) (*Session, error) {
	_, session, err := resolve(external)
	return session, err
}

// Begin - open a new upload session
//
// owner only; the vault must allow uploads and the declared size must
// fit the remaining quota
func Begin(vaultID principal.Principal, meta Meta, caller principal.Principal) (principal.Principal, error) {
	if !meta.Kind.Valid() || 0 == meta.ChunkCount {
		return nil, fault.InvalidInput
	}
	if !content.ValidMime(meta.Kind, meta.MimeType) {
		return nil, fault.InvalidInput
	}
	if meta.DeclaredSize > uint64(meta.ChunkCount)*constants.MaxChunkSize {
		return nil, fault.InvalidInput
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return nil, err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return nil, err
	}
	if !cfg.Status.AllowsUploads() {
		return nil, fault.InvalidState
	}
	if meta.DeclaredSize > cfg.QuotaRemaining() {
		return nil, fault.StorageLimitExceeded
	}

	external, err := principal.New(principal.TagUpload)
	if err != nil {
		return nil, err
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return nil, err
	}
	id := sequence.New(storage.Pool.UploadCounter).Next()
	session := &Session{
		External:     external.Bytes(),
		VaultID:      vaultID.Bytes(),
		Initiator:    caller.Bytes(),
		Kind:         meta.Kind,
		Filename:     meta.Filename,
		MimeType:     meta.MimeType,
		Title:        meta.Title,
		Description:  meta.Description,
		DeclaredSize: meta.DeclaredSize,
		ChunkCount:   meta.ChunkCount,
		Received:     map[uint32]bool{},
		Status:       Open,
		CreatedAt:    clock.Now(),
	}
	if err := store(id, session); err != nil {
		trx.Abort()
		return nil, err
	}
	sequence.NewIndex(storage.Pool.UploadLookup).Put(external, id)
	return external, trx.Commit()
}

// Chunk - stage one chunk
//
// indices may arrive in any order; resending an index overwrites
func Chunk(external principal.Principal, index uint32, data []byte, caller principal.Principal) error {
	id, session, err := resolve(external)
	if err != nil {
		return err
	}
	if !caller.Equal(mustPrincipal(session.Initiator)) {
		return fault.NotAuthorized
	}
	if Open != session.Status {
		return fault.SessionClosed
	}
	if len(data) > constants.MaxChunkSize {
		return fault.InvalidChunk
	}
	if index >= session.ChunkCount {
		return fault.InvalidChunk
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	storage.Pool.UploadChunks.Put(chunkKey(id, index), data)
	session.Received[index] = true
	if err := store(id, session); err != nil {
		trx.Abort()
		return err
	}
	return trx.Commit()
}

// Finish - verify and commit a completed upload
//
// verifies every declared chunk is present and the SHA-256 of the
// ordered concatenation matches, then materialises the content item,
// charges the vault usage, and removes the staging state, all in one
// barrier
func Finish(external principal.Principal, expectedSHA256 []byte, caller principal.Principal) (principal.Principal, error) {
	id, session, err := resolve(external)
	if err != nil {
		return nil, err
	}
	if !caller.Equal(mustPrincipal(session.Initiator)) {
		return nil, fault.NotAuthorized
	}
	if Open != session.Status {
		return nil, fault.SessionClosed
	}

	for index := uint32(0); index < session.ChunkCount; index += 1 {
		if !session.Received[index] {
			return nil, fault.UploadIncomplete
		}
	}

	digest := sha256.New()
	blob := make([]byte, 0, session.DeclaredSize)
	for index := uint32(0); index < session.ChunkCount; index += 1 {
		data := storage.Pool.UploadChunks.Get(chunkKey(id, index))
		if nil == data {
			return nil, fault.UploadIncomplete
		}
		digest.Write(data)
		blob = append(blob, data...)
	}
	if !bytes.Equal(digest.Sum(nil), expectedSHA256) {
		return nil, fault.ChecksumMismatch
	}
	if uint64(len(blob)) > session.DeclaredSize {
		return nil, fault.InvalidInput
	}

	vaultID, err := principal.FromBytes(session.VaultID)
	if err != nil {
		return nil, err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return nil, err
	}
	size := uint64(len(blob))
	if size > cfg.QuotaRemaining() {
		return nil, fault.StorageLimitExceeded
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return nil, err
	}

	contentID, err := content.Insert(vaultID, &content.Item{
		Kind:        session.Kind,
		Title:       session.Title,
		Description: session.Description,
		Filename:    session.Filename,
		MimeType:    session.MimeType,
		Payload:     blob,
	})
	if err != nil {
		trx.Abort()
		return nil, err
	}

	cfg.BytesUsed += size
	cfg.UpdatedAt = clock.Now()
	if err := vault.Store(vaultID, cfg); err != nil {
		trx.Abort()
		return nil, err
	}

	removeStaging(id, session)
	audit.Append(vaultID, audit.ContentUploaded, caller)

	if err := trx.Commit(); err != nil {
		return nil, err
	}
	return contentID, nil
}

// Abort - drop a session and its chunks
//
// permitted to the initiator or the vault owner
func Abort(external principal.Principal, caller principal.Principal) error {
	id, session, err := resolve(external)
	if err != nil {
		return err
	}
	if !caller.Equal(mustPrincipal(session.Initiator)) {
		vaultID, err := principal.FromBytes(session.VaultID)
		if err != nil {
			return err
		}
		cfg, err := vault.Fetch(vaultID)
		if err != nil {
			return err
		}
		if err := guard.Owner(cfg, caller); err != nil {
			return err
		}
	}

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}
	removeStaging(id, session)
	return trx.Commit()
}

// remove session record, lookup entry, and all staged chunks
func removeStaging(id uint64, session *Session) {
	for index := uint32(0); index < session.ChunkCount; index += 1 {
		storage.Pool.UploadChunks.Delete(chunkKey(id, index))
	}
	storage.Pool.UploadSessions.Delete(sequence.Key(id))
	if external, err := principal.FromBytes(session.External); nil == err {
		sequence.NewIndex(storage.Pool.UploadLookup).Delete(external)
	}
}

// Map - run a function over every session in internal id order
func Map(f func(id uint64, session *Session) error) error {
	return storage.Pool.UploadSessions.NewFetchCursor().Map(func(key []byte, value []byte) error {
		if 8 != len(key) {
			return fault.StorageError("upload: malformed key")
		}
		session := &Session{}
		err := codec.Unmarshal(value, session)
		if err != nil {
			return err
		}
		return f(binary.BigEndian.Uint64(key), session)
	})
}

// GCSweep - drop sessions past the staging lifetime
//
// returns the number of sessions collected
func GCSweep() (int, error) {
	now := clock.Now()
	stale := map[uint64]*Session{}
	err := Map(func(id uint64, session *Session) error {
		if now-session.CreatedAt > constants.UploadLifetime {
			stale[id] = session
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for id, session := range stale {
		removeStaging(id, session)
	}
	return len(stale), nil
}

// RemoveByVault - drop all of a vault's sessions, used by the deletion cascade
func RemoveByVault(vaultID principal.Principal) error {
	doomed := map[uint64]*Session{}
	err := Map(func(id uint64, session *Session) error {
		if string(session.VaultID) == string(vaultID.Bytes()) {
			doomed[id] = session
		}
		return nil
	})
	if err != nil {
		return err
	}
	for id, session := range doomed {
		removeStaging(id, session)
	}
	return nil
}

func mustPrincipal(b []byte) principal.Principal {
	p, _ := principal.FromBytes(b)
	return p
}
