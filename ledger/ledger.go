// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger - outbound ledger inspection
//
// the engine consumes exactly one query from the ledger: the list of
// transactions for a block index or for a subaccount window; every
// transport failure is reported as a retriable condition by the
// payment layer
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/keeper-vault/keeperd/fault"
)

// Transaction - one ledger transfer record
type Transaction struct {
	From         string `json:"from"`
	ToSubaccount string `json:"to_subaccount"` // hex
	Amount       uint64 `json:"amount"`
	Memo         string `json:"memo"`
	TxHash       string `json:"tx_hash"`
	Timestamp    uint64 `json:"timestamp"`
}

// Subaccount - decode the recipient subaccount bytes
func (tx Transaction) Subaccount() []byte {
	b, err := hex.DecodeString(tx.ToSubaccount)
	if err != nil {
		return nil
	}
	return b
}

// Client - the ledger query surface
type Client interface {
	// TransactionsByBlock - all transfers in one block
	TransactionsByBlock(blockIndex uint64) ([]Transaction, error)

	// TransactionsBySubaccount - transfers to one subaccount since a time
	TransactionsBySubaccount(subaccount []byte, since uint64) ([]Transaction, error)
}

// HTTPClient - JSON over HTTP implementation of Client
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient - connect to a ledger endpoint
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) get(path string, result interface{}) error {
	response, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return fault.HttpError(err.Error())
	}
	defer response.Body.Close()

	if http.StatusOK != response.StatusCode {
		return fault.HttpError(fmt.Sprintf("ledger status: %d", response.StatusCode))
	}
	err = json.NewDecoder(response.Body).Decode(result)
	if err != nil {
		return fault.HttpError(err.Error())
	}
	return nil
}

// TransactionsByBlock - all transfers in one block
func (c *HTTPClient) TransactionsByBlock(blockIndex uint64) ([]Transaction, error) {
	var transactions []Transaction
	err := c.get(fmt.Sprintf("/blocks/%d/transactions", blockIndex), &transactions)
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// TransactionsBySubaccount - transfers to one subaccount since a time
func (c *HTTPClient) TransactionsBySubaccount(subaccount []byte, since uint64) ([]Transaction, error) {
	query := url.Values{}
	query.Set("since", fmt.Sprintf("%d", since))
	path := fmt.Sprintf("/subaccounts/%s/transactions?%s",
		hex.EncodeToString(subaccount), query.Encode())

	var transactions []Transaction
	err := c.get(path, &transactions)
	if err != nil {
		return nil, err
	}
	return transactions, nil
}
