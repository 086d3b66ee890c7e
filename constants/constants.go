// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package constants - fixed engine timings and sizes
package constants

// timing constants in seconds of engine time
const (
	// InviteLifetime - a pending invitation expires this long after creation
	InviteLifetime uint64 = 24 * 60 * 60

	// UploadLifetime - an open upload session is garbage collected
	// this long after creation
	UploadLifetime uint64 = 24 * 60 * 60

	// PaymentSessionLifetime - an issued payment session expires
	PaymentSessionLifetime uint64 = 30 * 60

	// GraceMasterPeriod - time in GRACE_MASTER before GRACE_HEIR
	GraceMasterPeriod uint64 = 14 * 24 * 60 * 60

	// GraceHeirPeriod - time in GRACE_HEIR without quorum before deletion
	GraceHeirPeriod uint64 = 14 * 24 * 60 * 60

	// UnlockWindow - time in UNLOCKABLE before EXPIRED
	UnlockWindow uint64 = 365 * 24 * 60 * 60

	// PurgePeriod - time in EXPIRED before final deletion
	PurgePeriod uint64 = 30 * 24 * 60 * 60

	// VaultTerm - paid vault lifetime from creation
	VaultTerm uint64 = 10 * 365 * 24 * 60 * 60
)

// size constants
const (
	// MaxChunkSize - largest accepted upload chunk in bytes
	MaxChunkSize = 512 * 1024

	// DefaultAuditCap - audit vector length that triggers compaction
	DefaultAuditCap = 1000

	// DefaultAuditKeep - tail length kept by compaction
	DefaultAuditKeep = 500
)

// rate control
const (
	// WriteBucketSize - burst capacity of the per-caller write bucket
	WriteBucketSize = 20

	// WriteRefillPerSecond - steady refill rate of the write bucket
	WriteRefillPerSecond = 1

	// DailyDownloadLimit - per member download descriptors per day
	DailyDownloadLimit = 3
)
