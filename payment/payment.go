// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package payment - volatile payment sessions and ledger verification
//
// sessions never touch the persistence region; a process restart
// simply forgets unverified sessions and the payer retries. the
// post-verification writes all happen in one barrier after the ledger
// call returns
package payment

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/logger"

	"github.com/keeper-vault/keeperd/audit"
	"github.com/keeper-vault/keeperd/billing"
	"github.com/keeper-vault/keeperd/clock"
	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/ledger"
	"github.com/keeper-vault/keeperd/principal"
	"github.com/keeper-vault/keeperd/storage"
	"github.com/keeper-vault/keeperd/vault"
)

// PurposeKind - why a payment is being collected
type PurposeKind uint8

// payment purposes
const (
	InitialVaultCreation PurposeKind = iota + 1
	PlanUpgrade
)

func (k PurposeKind) String() string {
	switch k {
	case InitialVaultCreation:
		return "initial-vault-creation"
	case PlanUpgrade:
		return "plan-upgrade"
	default:
		return "unknown"
	}
}

// Purpose - kind plus its parameters
type Purpose struct {
	Kind    PurposeKind
	Plan    vault.Plan          // initial creation: plan to provision; upgrade: target plan
	VaultID principal.Principal // upgrade only
}

// State - session state
type State uint8

// session states
const (
	Issued State = iota + 1
	Confirmed
	Closed
	Expired
)

// Session - one in-flight payment
type Session struct {
	ID         string
	Purpose    Purpose
	Payer      principal.Principal
	Amount     uint64
	Subaccount []byte
	State      State
	CreatedAt  uint64
	ExpiresAt  uint64
	TxHash     string
	VaultID    principal.Principal // set on confirmation
}

// Info - what the payer needs to settle a session
type Info struct {
	ID             string
	ReceiveAddress string
	Amount         uint64
	ExpiresAt      uint64
}

// Handler - post-verification dispatch
//
// runs inside the verify barrier; must not open its own transaction;
// returns the vault the payment settles
type Handler func(session *Session, tx ledger.Transaction) (principal.Principal, error)

// sessions are kept past their deadline so a late verify can report
// timeout instead of an unknown session
const sessionRetention = 24 * time.Hour

var globalData struct {
	sync.RWMutex
	log      *logger.L
	client   ledger.Client
	engine   principal.Principal
	sessions *gocache.Cache
	handlers map[PurposeKind]Handler
}

// Initialise - bind the ledger client and the engine's own principal
func Initialise(client ledger.Client, engine principal.Principal) error {
	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.sessions {
		return fault.AlreadyInitialised
	}
	globalData.log = logger.New("payment")
	globalData.client = client
	globalData.engine = engine
	globalData.sessions = gocache.New(sessionRetention, 10*time.Minute)
	globalData.handlers = map[PurposeKind]Handler{}
	globalData.log.Info("initialising…")
	return nil
}

// Finalise - drop all volatile state
func Finalise() {
	globalData.Lock()
	defer globalData.Unlock()
	globalData.sessions = nil
	globalData.handlers = nil
	globalData.client = nil
}

// Register - install the post-verification handler for one purpose
func Register(kind PurposeKind, handler Handler) {
	globalData.Lock()
	defer globalData.Unlock()
	globalData.handlers[kind] = handler
}

// InitSession - open a payment session
//
// draws a fresh 32 byte subaccount so each session has a unique
// receive address under the engine's ledger account
func InitSession(purpose Purpose, amount uint64, payer principal.Principal) (*Info, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if nil == globalData.sessions {
		return nil, fault.NotInitialised
	}
	if payer.IsZero() || 0 == amount {
		return nil, fault.InvalidInput
	}
	if InitialVaultCreation == purpose.Kind {
		if !purpose.Plan.Valid() {
			return nil, fault.InvalidInput
		}
		if amount != purpose.Plan.Price() {
			return nil, fault.PaymentAmountMismatch
		}
	}

	subaccount := make([]byte, 32)
	if _, err := rand.Read(subaccount); err != nil {
		return nil, fault.InternalError("payment: rng: %s", err)
	}

	now := clock.Now()
	session := &Session{
		ID:         uuid.New().String(),
		Purpose:    purpose,
		Payer:      payer,
		Amount:     amount,
		Subaccount: subaccount,
		State:      Issued,
		CreatedAt:  now,
		ExpiresAt:  now + constants.PaymentSessionLifetime,
	}
	globalData.sessions.Set(session.ID, session, sessionRetention)

	globalData.log.Infof("session: %s  purpose: %s  amount: %d",
		session.ID, purpose.Kind, amount)

	return &Info{
		ID:             session.ID,
		ReceiveAddress: globalData.engine.String() + ":" + hex.EncodeToString(subaccount),
		Amount:         amount,
		ExpiresAt:      session.ExpiresAt,
	}, nil
}

// GetSession - read a session for inspection
func GetSession(sessionID string) (*Session, error) {
	globalData.RLock()
	defer globalData.RUnlock()
	if nil == globalData.sessions {
		return nil, fault.NotInitialised
	}
	item, found := globalData.sessions.Get(sessionID)
	if !found {
		return nil, fault.SessionClosed
	}
	return item.(*Session), nil
}

// Verify - settle a session against the ledger
//
// re-verifying a confirmed session is idempotent: it returns the same
// transaction hash and performs no further writes
func Verify(sessionID string, blockHint *uint64) (string, error) {
	session, err := GetSession(sessionID)
	if err != nil {
		return "", err
	}

	if Confirmed == session.State {
		return session.TxHash, nil
	}
	if Closed == session.State {
		return "", fault.SessionClosed
	}
	if clock.Now() >= session.ExpiresAt {
		session.State = Expired
		return "", fault.PaymentTimeout
	}

	// the single suspension point of the engine
	tx, err := findTransaction(session, blockHint)
	if err != nil {
		return "", err
	}
	if tx.Amount < session.Amount {
		return "", fault.PaymentAmountMismatch
	}

	globalData.RLock()
	handler, ok := globalData.handlers[session.Purpose.Kind]
	globalData.RUnlock()
	if !ok {
		return "", fault.InternalError("payment: no handler for purpose: %s", session.Purpose.Kind)
	}

	// all post-verification writes in one barrier
	trx, err := storage.NewDBTransaction()
	if err != nil {
		return "", err
	}
	vaultID, err := handler(session, tx)
	if err != nil {
		trx.Abort()
		return "", err
	}

	txType := billing.InitialVaultCreation
	if PlanUpgrade == session.Purpose.Kind {
		txType = billing.PlanUpgrade
	}
	billing.Append(billing.Entry{
		Timestamp:        clock.Now(),
		VaultID:          vaultID.Bytes(),
		TxType:           txType,
		Amount:           tx.Amount,
		LedgerTxHash:     tx.TxHash,
		RelatedPrincipal: session.Payer.Bytes(),
	})
	audit.Append(vaultID, audit.PaymentVerified, session.Payer)

	if err := trx.Commit(); err != nil {
		return "", err
	}

	session.State = Confirmed
	session.TxHash = tx.TxHash
	session.VaultID = vaultID

	globalData.log.Infof("session: %s confirmed  tx: %s", session.ID, tx.TxHash)
	return tx.TxHash, nil
}

// locate the first matching transfer; any miss or transport failure
// is retriable
func findTransaction(session *Session, blockHint *uint64) (ledger.Transaction, error) {
	globalData.RLock()
	client := globalData.client
	globalData.RUnlock()

	var transactions []ledger.Transaction
	var err error
	if nil != blockHint {
		transactions, err = client.TransactionsByBlock(*blockHint)
	} else {
		transactions, err = client.TransactionsBySubaccount(session.Subaccount, session.CreatedAt)
	}
	if err != nil {
		return ledger.Transaction{}, fault.PaymentPending
	}

	for _, tx := range transactions {
		if string(tx.Subaccount()) == string(session.Subaccount) {
			return tx, nil
		}
	}
	return ledger.Transaction{}, fault.PaymentPending
}
