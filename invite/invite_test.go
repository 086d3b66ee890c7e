// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package invite_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/invite"
	"github.com/keeper-vault/keeperd/member"
	"github.com/keeper-vault/keeperd/metrics"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

const (
	databaseFileName = "test.leveldb"
)

func removeFiles() {
	os.RemoveAll(databaseFileName)
}

func setup(t *testing.T) {
	removeFiles()
	clock.Set(1_700_000_000)
	err := storage.Initialise(databaseFileName)
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	storage.Finalise()
	clock.Reset()
	removeFiles()
}

func TestMain(m *testing.M) {
	removeFiles()
	rc := m.Run()
	removeFiles()
	os.Exit(rc)
}

// store a vault ready for invitations
func makeVault(t *testing.T, status vault.Status) (principal.Principal, principal.Principal) {
	vaultID, _ := principal.New(principal.TagVault)
	owner, _ := principal.New(principal.TagMember)
	err := vault.Store(vaultID, &vault.Config{
		Owner:        owner.Bytes(),
		Plan:         vault.Basic,
		Status:       status,
		StorageQuota: vault.Basic.Quota(),
		CreatedAt:    clock.Now(),
	})
	assert.Nil(t, err, "vault store error")
	return vaultID, owner
}

func TestGenerateClaim(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.NeedSetup)

	external, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Nil(t, err, "generate error")

	token, err := invite.Fetch(external)
	assert.Nil(t, err, "fetch error")
	assert.Equal(t, invite.Pending, token.Status, "wrong status")
	assert.Equal(t, clock.Now()+86_400, token.ExpiresAt, "wrong expiry")
	assert.Equal(t, uint8(1), token.ShamirIndex, "wrong index")

	claimer, _ := principal.New(principal.TagMember)
	m, err := invite.Claim(external, claimer, invite.ClaimData{Name: "kid", Relation: "son"})
	assert.Nil(t, err, "claim error")
	assert.Equal(t, member.Heir, m.Role, "wrong role")
	assert.Equal(t, member.Active, m.Status, "wrong member status")
	assert.Equal(t, uint8(1), m.ShamirIndex, "wrong member index")

	// first heir claim completes setup
	cfg, err := vault.Fetch(vaultID)
	assert.Nil(t, err, "vault fetch error")
	assert.Equal(t, vault.SetupComplete, cfg.Status, "setup not completed")

	token, _ = invite.Fetch(external)
	assert.Equal(t, invite.Claimed, token.Status, "token not claimed")
	assert.Equal(t, claimer.Bytes(), token.ClaimedBy, "wrong claimer")

	// second claim of the same token
	again, _ := principal.New(principal.TagMember)
	_, err = invite.Claim(external, again, invite.ClaimData{})
	assert.Equal(t, fault.TokenExpired, err, "claimed token reusable")

	// metrics counted both sides
	snap := metrics.Get()
	assert.Equal(t, uint64(1), snap.InvitesToday, "wrong invites today")
	assert.Equal(t, uint64(1), snap.InvitesClaimed, "wrong invites claimed")
}

func TestGenerateGuards(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Unlockable)

	// vault state forbids invites
	_, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Equal(t, fault.InvalidState, err, "wrong state error")

	vaultID, _ = makeVault(t, vault.Active)
	stranger, _ := principal.New(principal.TagMember)
	_, err = invite.Generate(vaultID, member.Heir, stranger)
	assert.Equal(t, fault.OwnerGuardFailed, err, "wrong guard error")

	_, err = invite.Generate(vaultID, member.Role(9), owner)
	assert.Equal(t, fault.InvalidInput, err, "wrong role error")
}

func TestShamirAllocation(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Active)

	claimers := []principal.Principal{}
	for i := uint8(1); i <= 3; i += 1 {
		external, err := invite.Generate(vaultID, member.Heir, owner)
		assert.Nil(t, err, "generate error")
		claimer, _ := principal.New(principal.TagMember)
		m, err := invite.Claim(external, claimer, invite.ClaimData{})
		assert.Nil(t, err, "claim error")
		assert.Equal(t, i, m.ShamirIndex, "wrong index order")
		claimers = append(claimers, claimer)
	}

	// fourth member extends the sequence
	external, _ := invite.Generate(vaultID, member.Heir, owner)
	claimer, _ := principal.New(principal.TagMember)
	m, err := invite.Claim(external, claimer, invite.ClaimData{})
	assert.Nil(t, err, "claim error")
	assert.Equal(t, uint8(4), m.ShamirIndex, "wrong fourth index")

	// revoking the second member releases index 2
	second, err := member.Fetch(vaultID, claimers[1])
	assert.Nil(t, err, "member fetch error")
	second.Status = member.Revoked
	assert.Nil(t, member.Store(vaultID, claimers[1], second), "member store error")

	external, _ = invite.Generate(vaultID, member.Heir, owner)
	claimer, _ = principal.New(principal.TagMember)
	m, err = invite.Claim(external, claimer, invite.ClaimData{})
	assert.Nil(t, err, "claim error")
	assert.Equal(t, uint8(2), m.ShamirIndex, "freed index not reused")

	// pending invites hold their index too
	_, err = invite.Generate(vaultID, member.Witness, owner)
	assert.Nil(t, err, "generate error")
	externalB, err := invite.Generate(vaultID, member.Witness, owner)
	assert.Nil(t, err, "generate error")
	tokenB, _ := invite.Fetch(externalB)
	assert.Equal(t, uint8(2), tokenB.ShamirIndex, "pending index reissued")
}

// all 255 share indices held: the next invitation must fail
func TestShamirExhaustion(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Active)

	for i := 1; i <= 255; i += 1 {
		_, err := invite.Generate(vaultID, member.Heir, owner)
		assert.Nil(t, err, "generate %d error", i)
	}

	_, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Equal(t, fault.ShareIndexExhausted, err, "wrong exhaustion error")

	// the other role has its own index space
	_, err = invite.Generate(vaultID, member.Witness, owner)
	assert.Nil(t, err, "witness generate error")
}

func TestExpiryBoundary(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Active)

	external, err := invite.Generate(vaultID, member.Heir, owner)
	assert.Nil(t, err, "generate error")

	// one second before the deadline the token is still claimable
	clock.Advance(86_399)
	n, err := invite.ExpireSweep()
	assert.Nil(t, err, "sweep error")
	assert.Equal(t, 0, n, "sweep fired early")
	token, _ := invite.Fetch(external)
	assert.Equal(t, invite.Pending, token.Status, "expired early")

	// at the deadline it expires
	clock.Advance(1)
	n, err = invite.ExpireSweep()
	assert.Nil(t, err, "sweep error")
	assert.Equal(t, 1, n, "sweep missed token")
	token, _ = invite.Fetch(external)
	assert.Equal(t, invite.Expired, token.Status, "not expired")

	claimer, _ := principal.New(principal.TagMember)
	_, err = invite.Claim(external, claimer, invite.ClaimData{})
	assert.Equal(t, fault.TokenExpired, err, "expired token claimable")
}

func TestRevoke(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultID, owner := makeVault(t, vault.Active)

	external, _ := invite.Generate(vaultID, member.Heir, owner)

	stranger, _ := principal.New(principal.TagMember)
	err := invite.Revoke(external, stranger)
	assert.Equal(t, fault.OwnerGuardFailed, err, "wrong guard error")

	err = invite.Revoke(external, owner)
	assert.Nil(t, err, "revoke error")

	token, _ := invite.Fetch(external)
	assert.Equal(t, invite.Revoked, token.Status, "not revoked")

	// revoked token cannot be revoked again or claimed
	err = invite.Revoke(external, owner)
	assert.Equal(t, fault.InvalidState, err, "double revoke allowed")

	claimer, _ := principal.New(principal.TagMember)
	_, err = invite.Claim(external, claimer, invite.ClaimData{})
	assert.Equal(t, fault.TokenExpired, err, "revoked token claimable")
}

func TestRemoveByVault(t *testing.T) {
	setup(t)
	defer teardown(t)

	vaultA, ownerA := makeVault(t, vault.Active)
	vaultB, ownerB := makeVault(t, vault.Active)

	externalA, _ := invite.Generate(vaultA, member.Heir, ownerA)
	externalB, _ := invite.Generate(vaultB, member.Heir, ownerB)

	err := invite.RemoveByVault(vaultA)
	assert.Nil(t, err, "remove error")

	_, err = invite.Fetch(externalA)
	assert.Equal(t, fault.TokenInvalid, err, "token survived cascade")

	_, err = invite.Fetch(externalB)
	assert.Nil(t, err, "cascade crossed vaults")
}
