// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/guard"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/vault"
)

// decode the caller and a tagged target principal from their text forms

func callerAndVault(callerText string, vaultText string) (principal.Principal, principal.Principal, error) {
	caller, err := principal.FromBase58(callerText)
	if err != nil {
		return nil, nil, err
	}
	vaultID, err := target(vaultText, principal.TagVault)
	if err != nil {
		return nil, nil, err
	}
	return caller, vaultID, nil
}

func target(text string, tag byte) (principal.Principal, error) {
	p, err := principal.FromBase58(text)
	if err != nil {
		return nil, err
	}
	if tag != p.Tag() {
		return nil, fault.InvalidPrincipal
	}
	return p, nil
}

// read access: the owner or any non-revoked member
func memberOrOwner(vaultID principal.Principal, cfg *vault.Config, caller principal.Principal) error {
	if nil == guard.Owner(cfg, caller) {
		return nil
	}
	if _, err := guard.Member(vaultID, caller); nil == err {
		return nil
	}
	return fault.NotAuthorized
}
