// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpc - the host-facing operation surface
//
// one handler struct per area in net/rpc convention: exported methods
// taking an arguments pointer and a reply pointer. the host dispatches
// one call at a time and supplies the authenticated caller principal
// in the arguments; update operations pass through the per-caller
// write limiter, queries do not
package rpc
