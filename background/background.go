// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package background - run processes until told to stop
package background

// the shutdown and completed channels for one background
type shutdown struct {
	shutdown chan bool
	finished chan bool
}

// T - handle for the running set
type T struct {
	s []shutdown
}

// Process - type signature for a background process
type Process func(args interface{}, shutdown <-chan bool, done chan<- bool)

// Processes - list of processes to start
type Processes []Process

// Start - run a set of background processes
func Start(processes Processes, args interface{}) *T {

	register := new(T)
	register.s = make([]shutdown, len(processes))

	// start each background
	for i, p := range processes {
		shutdown := make(chan bool)
		finished := make(chan bool)
		register.s[i].shutdown = shutdown
		register.s[i].finished = finished
		go p(args, shutdown, finished)
	}
	return register
}

// Stop - shut down a set of background processes
func Stop(t *T) {
	if nil == t {
		return
	}

	// shutdown all background tasks
	for _, shutdown := range t.s {
		close(shutdown.shutdown)
	}

	// wait for finished
	for _, shutdown := range t.s {
		<-shutdown.finished
	}
}
