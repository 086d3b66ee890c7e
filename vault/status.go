// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package vault

// Status - where a vault is in its lifecycle
type Status uint8

// lifecycle states
const (
	Draft Status = iota + 1
	NeedSetup
	SetupComplete
	Active
	GraceMaster
	GraceHeir
	Unlockable
	Expired
	Deleted
)

var statusNames = map[Status]string{
	Draft:         "draft",
	NeedSetup:     "need-setup",
	SetupComplete: "setup-complete",
	Active:        "active",
	GraceMaster:   "grace-master",
	GraceHeir:     "grace-heir",
	Unlockable:    "unlockable",
	Expired:       "expired",
	Deleted:       "deleted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// permitted lifecycle edges; anything absent is forbidden
var statusEdges = map[Status][]Status{
	Draft:         {NeedSetup},
	NeedSetup:     {SetupComplete},
	SetupComplete: {Active},
	Active:        {GraceMaster, Unlockable},
	GraceMaster:   {GraceHeir},
	GraceHeir:     {Unlockable, Deleted},
	Unlockable:    {Expired},
	Expired:       {Deleted},
}

// CanTransition - check one lifecycle edge
func (s Status) CanTransition(target Status) bool {
	for _, next := range statusEdges[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal - states from which an owner may delete the vault
func (s Status) Terminal() bool {
	return Expired == s || Deleted == s
}

// AllowsInvites - states in which new invitations may be generated
func (s Status) AllowsInvites() bool {
	switch s {
	case NeedSetup, SetupComplete, Active:
		return true
	}
	return false
}

// AllowsUploads - states in which uploads may begin
func (s Status) AllowsUploads() bool {
	return SetupComplete == s || Active == s
}

// AllowsDownloads - states in which heirs may retrieve payloads
func (s Status) AllowsDownloads() bool {
	return Unlockable == s
}
