// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"io"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/ratelimit"
)

// CreateServer - a net/rpc server with every handler registered
//
// all update handlers share one write limiter so a caller's budget
// spans areas
func CreateServer(log *logger.L) *rpc.Server {
	limiter := ratelimit.New()

	server := rpc.NewServer()
	_ = server.Register(&Payments{Log: log, Limiter: limiter})
	_ = server.Register(&Vaults{Log: log, Limiter: limiter})
	_ = server.Register(&Invites{Log: log, Limiter: limiter})
	_ = server.Register(&Uploads{Log: log, Limiter: limiter})
	_ = server.Register(&Contents{Log: log, Limiter: limiter})
	_ = server.Register(&Admin{Log: log, Limiter: limiter})
	_ = server.Register(&Scheduler{Log: log, Limiter: limiter})
	return server
}

// Serve - run the JSON codec over one connection until it closes
func Serve(server *rpc.Server, conn io.ReadWriteCloser) {
	codec := jsonrpc.NewServerCodec(conn)
	defer codec.Close()
	server.ServeCodec(codec)
}
