// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/content"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
	"github.com/keeper-vault/keeperd/vault"
)

// Contents - type for the RPC
type Contents struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// ContentRecord - item metadata without the payload
type ContentRecord struct {
	ContentId   string `json:"contentId"`
	Kind        string `json:"kind"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Filename    string `json:"filename,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Size        uint64 `json:"size"`
	CreatedAt   uint64 `json:"createdAt"`
	UpdatedAt   uint64 `json:"updatedAt"`
}

func contentRecord(item *content.Item) ContentRecord {
	external, _ := principal.FromBytes(item.External)
	return ContentRecord{
		ContentId:   external.String(),
		Kind:        item.Kind.String(),
		Title:       item.Title,
		Description: item.Description,
		Filename:    item.Filename,
		MimeType:    item.MimeType,
		Size:        uint64(len(item.Payload)),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// ContentGetArguments - arguments for RPC request
type ContentGetArguments struct {
	Caller    string `json:"caller"`
	ContentId string `json:"contentId"`
}

// ContentGetReply - results from RPC request
type ContentGetReply struct {
	Item ContentRecord `json:"item"`
}

// Get - read one item's metadata
func (c *Contents) Get(arguments *ContentGetArguments, reply *ContentGetReply) error {
	caller, item, cfg, vaultID, err := resolveItem(arguments.Caller, arguments.ContentId)
	if err != nil {
		return err
	}
	if err := memberOrOwner(vaultID, cfg, caller); err != nil {
		return err
	}

	reply.Item = contentRecord(item)
	return nil
}

// ContentListArguments - arguments for RPC request
type ContentListArguments struct {
	Caller  string `json:"caller"`
	VaultId string `json:"vaultId"`
}

// ContentListReply - results from RPC request
type ContentListReply struct {
	Items []ContentRecord `json:"items"`
}

// List - the vault's items in listing order
func (c *Contents) List(arguments *ContentListArguments, reply *ContentListReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return err
	}
	if err := memberOrOwner(vaultID, cfg, caller); err != nil {
		return err
	}

	items, err := content.ListByVault(vaultID)
	if err != nil {
		return err
	}
	records := make([]ContentRecord, 0, len(items))
	for _, item := range items {
		records = append(records, contentRecord(item))
	}
	reply.Items = records
	return nil
}

// ContentUpdateArguments - arguments for RPC request
type ContentUpdateArguments struct {
	Caller      string `json:"caller"`
	ContentId   string `json:"contentId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ContentUpdateReply - results from RPC request
type ContentUpdateReply struct {
	Item ContentRecord `json:"item"`
}

// Update - owner edit of an item's title and description
func (c *Contents) Update(arguments *ContentUpdateArguments, reply *ContentUpdateReply) error {
	caller, _, cfg, _, err := resolveItem(arguments.Caller, arguments.ContentId)
	if err != nil {
		return err
	}
	if err := c.Limiter.Allow(caller); err != nil {
		return err
	}
	if err := guard.Owner(cfg, caller); err != nil {
		return err
	}

	external, err := target(arguments.ContentId, principal.TagContent)
	if err != nil {
		return err
	}
	item, err := content.Update(external, arguments.Title, arguments.Description)
	if err != nil {
		return err
	}
	reply.Item = contentRecord(item)
	return nil
}

// ContentDeleteArguments - arguments for RPC request
type ContentDeleteArguments struct {
	Caller    string `json:"caller"`
	ContentId string `json:"contentId"`
}

// ContentDeleteReply - results from RPC request
type ContentDeleteReply struct {
	Deleted bool `json:"deleted"`
}

// Delete - remove one item and release its bytes
func (c *Contents) Delete(arguments *ContentDeleteArguments, reply *ContentDeleteReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := c.Limiter.Allow(caller); err != nil {
		return err
	}
	external, err := target(arguments.ContentId, principal.TagContent)
	if err != nil {
		return err
	}

	if err := content.Delete(external, caller); err != nil {
		return err
	}
	c.Log.Infof("delete: content: %s", external)

	reply.Deleted = true
	return nil
}

// ContentDownloadArguments - arguments for RPC request
type ContentDownloadArguments struct {
	Caller    string `json:"caller"`
	ContentId string `json:"contentId"`
}

// ContentDownloadReply - results from RPC request
type ContentDownloadReply struct {
	Item    ContentRecord `json:"item"`
	Payload []byte        `json:"payload"`
}

// RequestDownload - payload retrieval by an heir after unlock
//
// counts against the member's daily download allowance; the write
// limiter does not apply
func (c *Contents) RequestDownload(arguments *ContentDownloadArguments, reply *ContentDownloadReply) error {
	caller, item, cfg, vaultID, err := resolveItem(arguments.Caller, arguments.ContentId)
	if err != nil {
		return err
	}
	if !cfg.Status.AllowsDownloads() {
		return fault.InvalidState
	}
	if _, err := guard.RoleMember(vaultID, caller, member.Heir); err != nil {
		return err
	}
	if err := member.RecordDownload(vaultID, caller); err != nil {
		return err
	}
	audit.Append(vaultID, audit.ContentDownloaded, caller)
	c.Log.Infof("download: content: %s member: %s", arguments.ContentId, caller)

	reply.Item = contentRecord(item)
	reply.Payload = item.Payload
	return nil
}

// decode the caller, resolve an item and its vault
func resolveItem(callerText string, contentText string) (principal.Principal, *content.Item, *vault.Config, principal.Principal, error) {
	caller, err := principal.FromBase58(callerText)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	external, err := target(contentText, principal.TagContent)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	item, err := content.Get(external)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	vaultID, err := principal.FromBytes(item.VaultID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cfg, err := vault.Fetch(vaultID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return caller, item, cfg, vaultID, nil
}
