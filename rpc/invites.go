// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/invite"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/ratelimit"
)

// Invites - type for the RPC
type Invites struct {
	Log     *logger.L
	Limiter *ratelimit.Limiter
}

// InviteGenerateArguments - arguments for RPC request
type InviteGenerateArguments struct {
	Caller  string `json:"caller"`
	VaultId string `json:"vaultId"`
	Role    string `json:"role"`
}

// InviteGenerateReply - results from RPC request
type InviteGenerateReply struct {
	TokenId     string `json:"tokenId"`
	ShamirIndex uint8  `json:"shamirIndex"`
	ExpiresAt   uint64 `json:"expiresAt"`
}

// Generate - issue an invitation token
func (i *Invites) Generate(arguments *InviteGenerateArguments, reply *InviteGenerateReply) error {
	caller, vaultID, err := callerAndVault(arguments.Caller, arguments.VaultId)
	if err != nil {
		return err
	}
	if err := i.Limiter.Allow(caller); err != nil {
		return err
	}
	role, err := member.RoleFromString(arguments.Role)
	if err != nil {
		return err
	}

	external, err := invite.Generate(vaultID, role, caller)
	if err != nil {
		return err
	}
	i.Log.Infof("generate: token: %s vault: %s", external, vaultID)

	token, err := invite.Fetch(external)
	if err != nil {
		return err
	}
	reply.TokenId = external.String()
	reply.ShamirIndex = token.ShamirIndex
	reply.ExpiresAt = token.ExpiresAt
	return nil
}

// InviteClaimArguments - arguments for RPC request
type InviteClaimArguments struct {
	Caller   string `json:"caller"`
	TokenId  string `json:"tokenId"`
	Name     string `json:"name,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// InviteClaimReply - results from RPC request
type InviteClaimReply struct {
	VaultId     string `json:"vaultId"`
	Role        string `json:"role"`
	ShamirIndex uint8  `json:"shamirIndex"`
}

// Claim - redeem an invitation and join the vault
func (i *Invites) Claim(arguments *InviteClaimArguments, reply *InviteClaimReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := i.Limiter.Allow(caller); err != nil {
		return err
	}
	external, err := target(arguments.TokenId, principal.TagInvite)
	if err != nil {
		return err
	}

	m, err := invite.Claim(external, caller, invite.ClaimData{
		Name:     arguments.Name,
		Relation: arguments.Relation,
	})
	if err != nil {
		return err
	}

	token, err := invite.Fetch(external)
	if err != nil {
		return err
	}
	vaultID, err := principal.FromBytes(token.VaultID)
	if err != nil {
		return err
	}
	i.Log.Infof("claim: token: %s member: %s", external, caller)

	reply.VaultId = vaultID.String()
	reply.Role = m.Role.String()
	reply.ShamirIndex = m.ShamirIndex
	return nil
}

// InviteRevokeArguments - arguments for RPC request
type InviteRevokeArguments struct {
	Caller  string `json:"caller"`
	TokenId string `json:"tokenId"`
}

// InviteRevokeReply - results from RPC request
type InviteRevokeReply struct {
	Revoked bool `json:"revoked"`
}

// Revoke - withdraw a pending invitation
func (i *Invites) Revoke(arguments *InviteRevokeArguments, reply *InviteRevokeReply) error {
	caller, err := principal.FromBase58(arguments.Caller)
	if err != nil {
		return err
	}
	if err := i.Limiter.Allow(caller); err != nil {
		return err
	}
	external, err := target(arguments.TokenId, principal.TagInvite)
	if err != nil {
		return err
	}

	if err := invite.Revoke(external, caller); err != nil {
		return err
	}
	reply.Revoked = true
	return nil
}
