// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/payment"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
	"github.com/keeper-vault/keeperd/vault"
)

// Payments - type for the RPC
type Payments struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// PaymentInitArguments - arguments for RPC request
type PaymentInitArguments struct {
	Caller string `json:"caller"`
	Plan   string `json:"plan"`
	Amount uint64 `json:"amount"`
}

// PaymentInitReply - results from RPC request
type PaymentInitReply struct {
	SessionId      string `json:"sessionId"`
	ReceiveAddress string `json:"receiveAddress"`
	Amount         uint64 `json:"amount"`
	ExpiresAt      uint64 `json:"expiresAt"`
}

// Init - open a payment session for a new vault
func (p *Payments) Init(arguments *PaymentInitArguments, reply *PaymentInitReply) error {
	if nil == arguments {
		return fault.InvalidInput
	}
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := p.Limiter.Allow(caller); err != nil {
		return err
	}
	plan, err := vault.PlanFromString(arguments.Plan)
	if err != nil {
		return err
	}

	info, err := payment.InitSession(payment.Purpose{
		Kind: payment.InitialVaultCreation,
		Plan: plan,
	}, arguments.Amount, caller)
	if err != nil {
		return err
	}

	p.Log.Infof("init: session: %s", info.ID)

	reply.SessionId = info.ID
	reply.ReceiveAddress = info.ReceiveAddress
	reply.Amount = info.Amount
	reply.ExpiresAt = info.ExpiresAt
	return nil
}

// PaymentVerifyArguments - arguments for RPC request
type PaymentVerifyArguments struct {
	Caller    string  `json:"caller"`
	SessionId string  `json:"sessionId"`
	BlockHint *uint64 `json:"blockHint,omitempty"`
}

// PaymentVerifyReply - results from RPC request
type PaymentVerifyReply struct {
	TxHash  string `json:"txHash"`
	VaultId string `json:"vaultId,omitempty"`
}

// Verify - settle a session against the ledger
func (p *Payments) Verify(arguments *PaymentVerifyArguments, reply *PaymentVerifyReply) error {
	if nil == arguments {
		return fault.InvalidInput
	}
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := p.Limiter.Allow(caller); err != nil {
		return err
	}

	txHash, err := payment.Verify(arguments.SessionId, arguments.BlockHint)
	if err != nil {
		return err
	}

	reply.TxHash = txHash
	if session, err := payment.GetSession(arguments.SessionId); nil == err && nil != session.VaultID {
		reply.VaultId = session.VaultID.String()
	}
	return nil
}
