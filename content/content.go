// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package content - committed vault content
//
// items are created only by the upload finalize path; the per-vault
// content list defines the listing order
package content

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/codec"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/sequence"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

// Kind - what sort of secret an item holds
type Kind uint8

// content kinds
const (
	File Kind = iota + 1
	Password
	Letter
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Password:
		return "password"
	case Letter:
		return "letter"
	default:
		return "unknown"
	}
}

// Valid - check the kind exists
func (k Kind) Valid() bool {
	return File == k || Password == k || Letter == k
}

// KindFromString - parse a kind name
func KindFromString(name string) (Kind, error) {
	switch name {
	case "file":
		return File, nil
	case "password":
		return Password, nil
	case "letter":
		return Letter, nil
	default:
		return 0, fault.InvalidInput
	}
}

// mime types accepted for file uploads
var allowedMime = map[string]bool{
	"application/pdf":    true,
	"application/zip":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"text/plain": true,
	"video/mp4":  true,
	"audio/mpeg": true,
}

// ValidMime - check a declared mime type against the kind
//
// password and letter items carry text or nothing
func ValidMime(kind Kind, mimeType string) bool {
	switch kind {
	case File:
		return allowedMime[mimeType]
	case Password, Letter:
		return "" == mimeType || "text/plain" == mimeType
	}
	return false
}

// Item - one content record
type Item struct {
	External    []byte `cbor:"1,keyasint"`
	VaultID     []byte `cbor:"2,keyasint"`
	Kind        Kind   `cbor:"3,keyasint"`
	Title       string `cbor:"4,keyasint,omitempty"`
	Description string `cbor:"5,keyasint,omitempty"`
	Filename    string `cbor:"6,keyasint,omitempty"`
	MimeType    string `cbor:"7,keyasint,omitempty"`
	CreatedAt   uint64 `cbor:"8,keyasint"`
	UpdatedAt   uint64 `cbor:"9,keyasint"`
	Payload     []byte `cbor:"10,keyasint"`
}

func store(id uint64, item *Item) error {
	value, err := codec.Marshal(item)
	if err != nil {
		return err
	}
	storage.Pool.ContentItems.Put(sequence.Key(id), value)
	return nil
}

func fetch(id uint64) (*Item, error) {
	value := storage.Pool.ContentItems.Get(sequence.Key(id))
	if nil == value {
		return nil, fault.ContentNotFound
	}
	item := &Item{}
	err := codec.Unmarshal(value, item)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func resolve(external principal.Principal) (uint64, *Item, error) {
	id, found := sequence.NewIndex(storage.Pool.ContentLookup).Lookup(external)
	if !found {
		return 0, nil, fault.ContentNotFound
	}
	item, err := fetch(id)
	if err != nil {
		return 0, nil, err
	}
	return id, item, nil
}

// the per-vault listing order

func loadList(vaultID principal.Principal) [][]byte {
	value := storage.Pool.ContentLists.Get(vaultID.Bytes())
	if nil == value {
		return nil
	}
	var list [][]byte
	err := codec.Unmarshal(value, &list)
	logger.PanicIfError("content.loadList", err)
	return list
}

func storeList(vaultID principal.Principal, list [][]byte) {
	value, err := codec.Marshal(list)
	logger.PanicIfError("content.storeList", err)
	storage.Pool.ContentLists.Put(vaultID.Bytes(), value)
}

// Insert - materialise a new item
//
// called only by the upload finalize path inside its barrier; writes
// the primary record, the secondary index, and the listing entry
func Insert(vaultID principal.Principal, item *Item) (principal.Principal, error) {
	external, err := principal.New(principal.TagContent)
	if err != nil {
		return nil, err
	}
	now := clock.Now()
	item.External = external.Bytes()
	item.VaultID = vaultID.Bytes()
	item.CreatedAt = now
	item.UpdatedAt = now

	id := sequence.New(storage.Pool.ContentCounter).Next()
	if err := store(id, item); err != nil {
		return nil, err
	}
	sequence.NewIndex(storage.Pool.ContentLookup).Put(external, id)
	storeList(vaultID, append(loadList(vaultID), external.Bytes()))
	return external, nil
}

// Get - read one item by external id
func Get(external principal.Principal) (*Item, error) {
	_, item, err := resolve(external)
	return item, err
}

// ListByVault - items in listing order
func ListByVault(vaultID principal.Principal) ([]*Item, error) {
	list := loadList(vaultID)
	items := make([]*Item, 0, len(list))
	for _, externalBytes := range list {
		external, err := principal.FromBytes(externalBytes)
		if err != nil {
			return nil, err
		}
		_, item, err := resolve(external)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Update - replace mutable fields preserving creation time
func Update(external principal.Principal, title string, description string) (*Item, error) {
	id, item, err := resolve(external)
	if err != nil {
		return nil, err
	}
	item.Title = title
	item.Description = description
	item.UpdatedAt = clock.Now()
	if err := store(id, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete - remove one item
//
// owner only; releases the item's bytes from the vault usage
func Delete(external principal.Principal, caller principal.Principal) error {
	id, item, err := resolve(external)
	if err != nil {
		return err
	}
	vaultID, err := principal.FromBytes(item.VaultID)
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

	trx, err := storage.NewDBTransaction()
	if err != nil {
		return err
	}

	storage.Pool.ContentItems.Delete(sequence.Key(id))
	sequence.NewIndex(storage.Pool.ContentLookup).Delete(external)

	list := loadList(vaultID)
	kept := make([][]byte, 0, len(list))
	for _, entry := range list {
		if string(entry) != string(external.Bytes()) {
			kept = append(kept, entry)
		}
	}
	storeList(vaultID, kept)

	size := uint64(len(item.Payload))
	if cfg.BytesUsed < size {
		cfg.BytesUsed = 0
	} else {
		cfg.BytesUsed -= size
	}
	cfg.UpdatedAt = clock.Now()
	if err := vault.Store(vaultID, cfg); err != nil {
		trx.Abort()
		return err
	}

	audit.Append(vaultID, audit.ContentDeleted, caller)
	return trx.Commit()
}

// RemoveByVault - drop all of a vault's items, used by the deletion cascade
func RemoveByVault(vaultID principal.Principal) error {
	list := loadList(vaultID)
	ix := sequence.NewIndex(storage.Pool.ContentLookup)
	for _, externalBytes := range list {
		external, err := principal.FromBytes(externalBytes)
		if err != nil {
			return err
		}
		if id, found := ix.Lookup(external); found {
			storage.Pool.ContentItems.Delete(sequence.Key(id))
			ix.Delete(external)
		}
	}
	storage.Pool.ContentLists.Delete(vaultID.Bytes())
	return nil
}
