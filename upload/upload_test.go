// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package upload_test

import (
	"crypto/sha256"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/content"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/upload"
	"github.com/keeper-vault/keeperd/vault"
)

const (
	databaseFileName = "test.leveldb"
)

func removeFiles() {
	os.RemoveAll(databaseFileName)
}

func setup(t *testing.T) {
	removeFiles()
	clock.Set(1_700_000_000)
	err := storage.Initialise(databaseFileName)
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	storage.Finalise()
	clock.Reset()
	removeFiles()
}

func TestMain(m *testing.M) {
	removeFiles()
	rc := m.Run()
	removeFiles()
	os.Exit(rc)
}

func makeVault(t *testing.T, plan vault.Plan) (principal.Principal, principal.Principal) {
	vaultID, _ := principal.New(principal.TagVault)
	owner, _ := principal.New(principal.TagMember)
	err := vault.Store(vaultID, &vault.Config{
		Owner:        owner.Bytes(),
		Plan:         plan,
		Status:       vault.Active,
		StorageQuota: plan.Quota(),
		CreatedAt:    clock.Now(),
	})
	assert.Nil(t, err, "vault store error")
	return vaultID, owner
}

func fileMeta(size uint64, chunks uint32) upload.Meta {
	return upload.Meta{
		Kind:         content.File,
		Filename:     "will.pdf",
		MimeType:     "application/pdf",
		DeclaredSize: size,
		ChunkCount:   chunks,
	}
}

// out of order chunk upload with a zero length tail chunk
func TestUploadRoundTrip(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Standard)

	uploadID, err := upload.Begin(vaultID, fileMeta(1_048_576, 3), owner)
	assert.Nil(t, err, "begin error")

	chunk0 := make([]byte, 512*1024)
	chunk1 := make([]byte, 512*1024)
	for i := range chunk0 {
		chunk0[i] = byte(i)
		chunk1[i] = byte(i / 7)
	}
	chunk2 := []byte{}

	// reversed order: 2, 0, 1
	assert.Nil(t, upload.Chunk(uploadID, 2, chunk2, owner), "chunk 2 error")
	assert.Nil(t, upload.Chunk(uploadID, 0, chunk0, owner), "chunk 0 error")
	assert.Nil(t, upload.Chunk(uploadID, 1, chunk1, owner), "chunk 1 error")

	blob := append(append([]byte{}, chunk0...), chunk1...)
	digest := sha256.Sum256(blob)

	contentID, err := upload.Finish(uploadID, digest[:], owner)
	assert.Nil(t, err, "finish error")

	item, err := content.Get(contentID)
	assert.Nil(t, err, "content get error")
	assert.Equal(t, 1_048_576, len(item.Payload), "wrong payload size")
	assert.Equal(t, blob, item.Payload, "wrong payload")

	items, err := content.ListByVault(vaultID)
	assert.Nil(t, err, "list error")
	assert.Equal(t, contentID.Bytes(), items[len(items)-1].External, "listing missing item")

	cfg, err := vault.Fetch(vaultID)
	assert.Nil(t, err, "vault fetch error")
	assert.Equal(t, uint64(1_048_576), cfg.BytesUsed, "usage not charged")

	// staging fully removed
	_, err = upload.Fetch(uploadID)
	assert.Equal(t, fault.UploadNotFound, err, "session survived finish")
	assert.False(t, storage.Pool.UploadChunks.Has(chunkProbe(0)), "chunks survived finish")
}

// first session's chunks live under internal id 0
func chunkProbe(index uint32) []byte {
	key := make([]byte, 12)
	key[11] = byte(index)
	return key
}

func TestChunkBoundary(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Standard)

	uploadID, err := upload.Begin(vaultID, fileMeta(1_048_578, 3), owner)
	assert.Nil(t, err, "begin error")

	// exactly 524288 bytes is accepted
	err = upload.Chunk(uploadID, 0, make([]byte, 524_288), owner)
	assert.Nil(t, err, "maximum chunk rejected")

	// one byte more is not
	err = upload.Chunk(uploadID, 1, make([]byte, 524_289), owner)
	assert.Equal(t, fault.InvalidChunk, err, "oversize chunk accepted")

	// index past the declared count is rejected
	err = upload.Chunk(uploadID, 3, []byte("x"), owner)
	assert.Equal(t, fault.InvalidChunk, err, "out of range index accepted")
}

func TestFinishFailures(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Standard)

	uploadID, err := upload.Begin(vaultID, fileMeta(1024, 2), owner)
	assert.Nil(t, err, "begin error")

	data := []byte("half of the payload")
	assert.Nil(t, upload.Chunk(uploadID, 0, data, owner), "chunk error")

	digest := sha256.Sum256(data)
	_, err = upload.Finish(uploadID, digest[:], owner)
	assert.Equal(t, fault.UploadIncomplete, err, "missing chunk not detected")

	assert.Nil(t, upload.Chunk(uploadID, 1, data, owner), "chunk error")
	_, err = upload.Finish(uploadID, digest[:], owner)
	assert.Equal(t, fault.ChecksumMismatch, err, "wrong checksum accepted")

	// nothing was committed by the failures
	items, err := content.ListByVault(vaultID)
	assert.Nil(t, err, "list error")
	assert.Equal(t, 0, len(items), "content created on failure")
	cfg, _ := vault.Fetch(vaultID)
	assert.Equal(t, uint64(0), cfg.BytesUsed, "usage charged on failure")
}

func TestInitiatorOnly(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Standard)

	uploadID, err := upload.Begin(vaultID, fileMeta(1024, 1), owner)
	assert.Nil(t, err, "begin error")

	stranger, _ := principal.New(principal.TagMember)
	err = upload.Chunk(uploadID, 0, []byte("x"), stranger)
	assert.Equal(t, fault.NotAuthorized, err, "foreign chunk accepted")

	digest := sha256.Sum256([]byte("x"))
	_, err = upload.Finish(uploadID, digest[:], stranger)
	assert.Equal(t, fault.NotAuthorized, err, "foreign finish accepted")

	err = upload.Abort(uploadID, stranger)
	assert.Equal(t, fault.OwnerGuardFailed, err, "foreign abort accepted")

	err = upload.Abort(uploadID, owner)
	assert.Nil(t, err, "owner abort rejected")
	_, err = upload.Fetch(uploadID)
	assert.Equal(t, fault.UploadNotFound, err, "session survived abort")
}

// two oversubscribing uploads against one quota
func TestQuotaEnforcement(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Standard) // 10 MiB

	first, err := upload.Begin(vaultID, fileMeta(6_291_456, 12), owner)
	assert.Nil(t, err, "first begin error")

	chunk := make([]byte, 524_288)
	digest := sha256.New()
	for i := uint32(0); i < 12; i += 1 {
		assert.Nil(t, upload.Chunk(first, i, chunk, owner), "chunk error")
		digest.Write(chunk)
	}
	_, err = upload.Finish(first, digest.Sum(nil), owner)
	assert.Nil(t, err, "first finish error")

	// second upload of the same size no longer fits
	_, err = upload.Begin(vaultID, fileMeta(6_291_456, 12), owner)
	assert.Equal(t, fault.StorageLimitExceeded, err, "quota not enforced")

	cfg, _ := vault.Fetch(vaultID)
	assert.Equal(t, uint64(6_291_456), cfg.BytesUsed, "wrong usage")
}

func TestGCSweep(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Standard)

	stale, err := upload.Begin(vaultID, fileMeta(1024, 1), owner)
	assert.Nil(t, err, "begin error")
	assert.Nil(t, upload.Chunk(stale, 0, []byte("x"), owner), "chunk error")

	clock.Advance(23 * 60 * 60)
	fresh, err := upload.Begin(vaultID, fileMeta(1024, 1), owner)
	assert.Nil(t, err, "begin error")

	// past 24h for the first session only
	clock.Advance(60*60 + 1)
	n, err := upload.GCSweep()
	assert.Nil(t, err, "sweep error")
	assert.Equal(t, 1, n, "wrong collection count")

	_, err = upload.Fetch(stale)
	assert.Equal(t, fault.UploadNotFound, err, "stale session survived")
	_, err = upload.Fetch(fresh)
	assert.Nil(t, err, "fresh session collected")
}
