// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package clock - the engine time source
//
// All persisted timestamps are unix epoch seconds taken from this
// package so that tests can run the engine at an arbitrary time.
package clock

import (
	"sync"
	"time"
)

var data struct {
	sync.RWMutex
	offset int64
	frozen int64 // non-zero when pinned by a test
}

// Now - current engine time as unix epoch seconds
func Now() uint64 {
	data.RLock()
	defer data.RUnlock()
	if data.frozen != 0 {
		return uint64(data.frozen)
	}
	return uint64(time.Now().Unix() + data.offset)
}

// Set - pin the engine time to a fixed instant; for tests
func Set(unixSeconds uint64) {
	data.Lock()
	data.frozen = int64(unixSeconds)
	data.Unlock()
}

// Advance - move a pinned engine time forward; for tests
func Advance(seconds uint64) {
	data.Lock()
	if data.frozen != 0 {
		data.frozen += int64(seconds)
	}
	data.Unlock()
}

// Reset - return to real time
func Reset() {
	data.Lock()
	data.frozen = 0
	data.offset = 0
	data.Unlock()
}
