// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/ledger"
	"github.com/keeper-vault/keeperd/lifecycle"
	"github.com/keeper-vault/keeperd/maintenance"
	"github.com/keeper-vault/keeperd/payment"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/rpc"
	"github.com/keeper-vault/keeperd/storage"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero" // do not change this value

// main program
func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "verbose", HasArg: getoptions.NO_ARGUMENT, Short: 'v'},
		{Long: "quiet", HasArg: getoptions.NO_ARGUMENT, Short: 'q'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "config-file", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
	}

	program, options, _, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		exitwithstatus.Message("%s: version: %s", program, version)
	}

	if len(options["help"]) > 0 {
		exitwithstatus.Message("usage: %s [--help] [--verbose] [--quiet] --config-file=FILE", program)
	}

	if 1 != len(options["config-file"]) {
		exitwithstatus.Message("%s: only one config-file option is required, %d were detected", program, len(options["config-file"]))
	}

	// read options and parse the configuration file
	configurationFile := options["config-file"][0]
	theConfiguration, err := getConfiguration(configurationFile)
	if nil != err {
		exitwithstatus.Message("%s: failed to read configuration from: %q  error: %s", program, configurationFile, err)
	}

	// start logging
	if err = logger.Initialise(theConfiguration.Logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", program, err)
	}
	defer logger.Finalise()

	// create a logger channel for the main program
	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version)
	log.Debugf("theConfiguration: %v", theConfiguration)

	// ------------------
	// start of real main
	// ------------------

	// optional PID file
	// use if not running under a supervisor program like daemon(8)
	if "" != theConfiguration.PidFile {
		lockFile, err := os.OpenFile(theConfiguration.PidFile, os.O_WRONLY|os.O_EXCL|os.O_CREATE, os.ModeExclusive|0600)
		if err != nil {
			if os.IsExist(err) {
				exitwithstatus.Message("%s: another instance is already running", program)
			}
			exitwithstatus.Message("%s: PID file: %q creation failed, error: %s", program, theConfiguration.PidFile, err)
		}
		fmt.Fprintf(lockFile, "%d\n", os.Getpid())
		lockFile.Close()
		defer os.Remove(theConfiguration.PidFile)
	}

	// general info
	log.Infof("database: %q", theConfiguration.Database)
	log.Infof("ledger: %q", theConfiguration.Ledger.URL)

	// start the data storage
	log.Info("initialise storage")
	err = storage.Initialise(theConfiguration.Database.Name)
	if nil != err {
		log.Criticalf("storage initialise error: %s", err)
		exitwithstatus.Message("storage initialise error: %s", err)
	}
	defer storage.Finalise()

	// the engine's own principal, shown in receive addresses
	engine, err := engineFromConfiguration(theConfiguration.Engine)
	if nil != err {
		log.Criticalf("engine principal error: %s", err)
		exitwithstatus.Message("engine principal error: %s", err)
	}
	log.Infof("engine: %s", engine)

	// payment sessions against the external ledger
	client := ledger.NewHTTPClient(
		theConfiguration.Ledger.URL,
		time.Duration(theConfiguration.Ledger.Timeout)*time.Second,
	)
	err = payment.Initialise(client, engine)
	if nil != err {
		log.Criticalf("payment initialise error: %s", err)
		exitwithstatus.Message("payment initialise error: %s", err)
	}
	defer payment.Finalise()

	// vault lifecycle coordinators and payment purpose handlers
	err = lifecycle.Initialise()
	if nil != err {
		log.Criticalf("lifecycle initialise error: %s", err)
		exitwithstatus.Message("lifecycle initialise error: %s", err)
	}
	defer lifecycle.Finalise()

	// the daily sweeps
	err = maintenance.Initialise(theConfiguration.Maintenance.AuditCap, theConfiguration.Maintenance.AuditKeep)
	if nil != err {
		log.Criticalf("maintenance initialise error: %s", err)
		exitwithstatus.Message("maintenance initialise error: %s", err)
	}
	defer maintenance.Finalise()

	// the operation surface
	server := rpc.CreateServer(logger.New("rpc"))
	for _, address := range theConfiguration.ClientRPC.Listen {
		listener, err := net.Listen("tcp", address)
		if nil != err {
			log.Criticalf("rpc listen error: %s", err)
			exitwithstatus.Message("rpc listen error: %s", err)
		}
		defer listener.Close()
		log.Infof("rpc listener on: %s", address)
		go func(listener net.Listener) {
			for {
				conn, err := listener.Accept()
				if nil != err {
					return
				}
				go rpc.Serve(server, conn)
			}
		}(listener)
	}

	// wait for CTRL-C before shutting down to allow manual testing
	if 0 == len(options["quiet"]) {
		fmt.Printf("\n\nWaiting for CTRL-C (SIGINT) or 'kill <pid>' (SIGTERM)…")
	}

	// turn Signals into channel messages
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)
	if 0 == len(options["quiet"]) {
		fmt.Printf("\nreceived signal: %v\n", sig)
		fmt.Printf("\nshutting down…\n")
	}

	log.Info("shutting down…")
}

// decode the configured engine principal or draw a fresh one
func engineFromConfiguration(text string) (principal.Principal, error) {
	if "" == text {
		return principal.New(principal.TagService)
	}
	return principal.FromBase58(text)
}
