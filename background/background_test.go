// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package background_test

import (
	"testing"
	"time"

	"github.com/keeper-vault/keeperd/background"
)

type counters struct {
	first  int
	second int
}

func TestBackground(t *testing.T) {

	state := &counters{}

	first := func(args interface{}, shutdown <-chan bool, finished chan<- bool) {
		defer close(finished)
		c := args.(*counters)
		for {
			select {
			case <-shutdown:
				return
			case <-time.After(time.Millisecond):
				c.first += 1
			}
		}
	}
	second := func(args interface{}, shutdown <-chan bool, finished chan<- bool) {
		defer close(finished)
		c := args.(*counters)
		for {
			select {
			case <-shutdown:
				return
			case <-time.After(time.Millisecond):
				c.second += 1
			}
		}
	}

	p := background.Start(background.Processes{first, second}, state)
	time.Sleep(50 * time.Millisecond)
	background.Stop(p)

	if 0 == state.first || 0 == state.second {
		t.Fatalf("processes did not run: %v", state)
	}

	// stopped means stopped
	firstAfter := state.first
	secondAfter := state.second
	time.Sleep(10 * time.Millisecond)
	if firstAfter != state.first || secondAfter != state.second {
		t.Fatalf("processes survived stop: %v", state)
	}
}

func TestStopNil(t *testing.T) {
	background.Stop(nil)
}
