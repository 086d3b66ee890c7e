// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/hex"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/content"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
	"github.com/keeper-vault/keeperd/upload"
)

// Uploads - type for the RPC
type Uploads struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// UploadBeginArguments - arguments for RPC request
type UploadBeginArguments struct {
	Caller       string `json:"caller"`
	VaultId      string `json:"vaultId"`
	Kind         string `json:"kind"`
	Filename     string `json:"filename,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	DeclaredSize uint64 `json:"declaredSize"`
	ChunkCount   uint32 `json:"chunkCount"`
}

// UploadBeginReply - results from RPC request
type UploadBeginReply struct {
	UploadId string `json:"uploadId"`
}

// Begin - open an upload session
func (u *Uploads) Begin(arguments *UploadBeginArguments, reply *UploadBeginReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	if err := u.Limiter.Allow(caller); err != nil {
		return err
	}
	kind, err := content.KindFromString(arguments.Kind)
	if err != nil {
		return err
	}

	external, err := upload.Begin(vaultID, upload.Meta{
		Kind:         kind,
		Filename:     arguments.Filename,
		MimeType:     arguments.MimeType,
		Title:        arguments.Title,
		Description:  arguments.Description,
		DeclaredSize: arguments.DeclaredSize,
		ChunkCount:   arguments.ChunkCount,
	}, caller)
	if err != nil {
		return err
	}
	u.Log.Infof("begin: upload: %s vault: %s", external, vaultID)

	reply.UploadId = external.String()
	return nil
}

// UploadChunkArguments - arguments for RPC request
type UploadChunkArguments struct {
	Caller   string `json:"caller"`
	UploadId string `json:"uploadId"`
	Index    uint32 `json:"index"`
	Data     []byte `json:"data"`
}

// UploadChunkReply - results from RPC request
type UploadChunkReply struct {
	Received uint32 `json:"received"`
	Expected uint32 `json:"expected"`
}

// Chunk - stage one chunk of an open session
func (u *Uploads) Chunk(arguments *UploadChunkArguments, reply *UploadChunkReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := u.Limiter.Allow(caller); err != nil {
		return err
	}
	external, err := target(arguments.UploadId, principal.TagUpload)
	if err != nil {
		return err
	}

	if err := upload.Chunk(external, arguments.Index, arguments.Data, caller); err != nil {
		return err
	}

	session, err := upload.Fetch(external)
	if err != nil {
		return err
	}
	reply.Received = uint32(len(session.Received))
	reply.Expected = session.ChunkCount
	return nil
}

// UploadFinishArguments - arguments for RPC request
type UploadFinishArguments struct {
	Caller   string `json:"caller"`
	UploadId string `json:"uploadId"`
	Sha256   string `json:"sha256"`
}

// UploadFinishReply - results from RPC request
type UploadFinishReply struct {
	ContentId string `json:"contentId"`
}

// Finish - verify the staged chunks and commit the item
func (u *Uploads) Finish(arguments *UploadFinishArguments, reply *UploadFinishReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := u.Limiter.Allow(caller); err != nil {
		return err
	}
	external, err := target(arguments.UploadId, principal.TagUpload)
	if err != nil {
		return err
	}
	expected, err := hex.DecodeString(arguments.Sha256)
	if err != nil || 32 != len(expected) {
		return fault.InvalidInput
	}

	contentID, err := upload.Finish(external, expected, caller)
	if err != nil {
		return err
	}
	u.Log.Infof("finish: upload: %s content: %s", external, contentID)

	reply.ContentId = contentID.String()
	return nil
}

// UploadAbortArguments - arguments for RPC request
type UploadAbortArguments struct {
	Caller   string `json:"caller"`
	UploadId string `json:"uploadId"`
}

// UploadAbortReply - results from RPC request
type UploadAbortReply struct {
	Aborted bool `json:"aborted"`
}

// Abort - discard a session and its staged chunks
func (u *Uploads) Abort(arguments *UploadAbortArguments, reply *UploadAbortReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := u.Limiter.Allow(caller); err != nil {
		return err
	}
	external, err := target(arguments.UploadId, principal.TagUpload)
	if err != nil {
		return err
	}

	if err := upload.Abort(external, caller); err != nil {
		return err
	}
	reply.Aborted = true
	return nil
}
