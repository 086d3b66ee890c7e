// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

import "fmt"

// error base
type GenericError string

// to allow for different classes of errors
type AuthError GenericError
type InvalidError GenericError
type NotFoundError GenericError
type PaymentError GenericError
type ProcessError GenericError
type ResourceError GenericError
type StateError GenericError

// common errors - the closed taxonomy, grouped by class
var (
	// input
	ChecksumMismatch = InvalidError("checksum mismatch")
	ChunkOutOfOrder  = InvalidError("chunk out of order")
	InvalidChunk     = InvalidError("invalid chunk")
	InvalidCount     = InvalidError("invalid count")
	InvalidCursor    = InvalidError("invalid cursor")
	InvalidInput     = InvalidError("invalid input")
	InvalidPrincipal = InvalidError("invalid principal")

	// authorization guards
	AdminGuardFailed     = AuthError("admin guard failed")
	MemberGuardFailed    = AuthError("member guard failed")
	NotAuthorized        = AuthError("not authorized")
	OwnerGuardFailed     = AuthError("owner guard failed")
	SchedulerGuardFailed = AuthError("scheduler guard failed")

	// state
	AlreadyClaimed         = StateError("already claimed")
	AlreadyInitialised     = StateError("already initialised")
	AlreadyUnlockable      = StateError("already unlockable")
	InvalidState           = StateError("invalid state")
	InvalidStateTransition = StateError("invalid state transition")
	NotInitialised         = StateError("not initialised")
	SessionClosed          = StateError("session closed")
	ShareIndexExhausted    = StateError("share index exhausted")
	UploadIncomplete       = StateError("upload incomplete")

	// resource
	RateLimitDownload    = ResourceError("rate limit download")
	RateLimitExceeded    = ResourceError("rate limit exceeded")
	ResourceLow          = ResourceError("resource low")
	StorageLimitExceeded = ResourceError("storage limit exceeded")

	// not found
	BillingRecordNotFound = NotFoundError("billing record not found")
	ContentNotFound       = NotFoundError("content not found")
	MemberNotFound        = NotFoundError("member not found")
	TokenExpired          = NotFoundError("token expired")
	TokenInvalid          = NotFoundError("token invalid")
	UploadNotFound        = NotFoundError("upload not found")
	VaultNotFound         = NotFoundError("vault not found")

	// payment
	ApprovalQuorumNotMet  = PaymentError("approval quorum not met")
	PaymentAmountMismatch = PaymentError("payment amount mismatch")
	PaymentPending        = PaymentError("payment pending")
	PaymentTimeout        = PaymentError("payment timeout")
)

// internal errors carry a detail string and share the process class

// StorageError - a failure of the underlying persistence region
func StorageError(detail string) error {
	return ProcessError("storage error: " + detail)
}

// SerializationError - a codec failure
func SerializationError(detail string) error {
	return ProcessError("serialization error: " + detail)
}

// HttpError - a failure of an outbound HTTP call
func HttpError(detail string) error {
	return ProcessError("http error: " + detail)
}

// InternalError - anything that should not happen
func InternalError(format string, arguments ...interface{}) error {
	return ProcessError("internal error: " + fmt.Sprintf(format, arguments...))
}

// the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e AuthError) Error() string     { return string(e) }
func (e InvalidError) Error() string  { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e PaymentError) Error() string  { return string(e) }
func (e ProcessError) Error() string  { return string(e) }
func (e ResourceError) Error() string { return string(e) }
func (e StateError) Error() string    { return string(e) }

// determine the class of an error
func IsErrAuth(e error) bool     { _, ok := e.(AuthError); return ok }
func IsErrInvalid(e error) bool  { _, ok := e.(InvalidError); return ok }
func IsErrNotFound(e error) bool { _, ok := e.(NotFoundError); return ok }
func IsErrPayment(e error) bool  { _, ok := e.(PaymentError); return ok }
func IsErrProcess(e error) bool  { _, ok := e.(ProcessError); return ok }
func IsErrResource(e error) bool { _, ok := e.(ResourceError); return ok }
func IsErrState(e error) bool    { _, ok := e.(StateError); return ok }
