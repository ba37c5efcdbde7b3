// Package history implements a client to a block-explorer query service (etherscan style API) used to list the
// transfers of an address. The service is an external collaborator: only its query boundary is modelled here.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const clientTimeout = 15 * time.Second

// Transfer is a read-only record of a past transfer as reported by the explorer. Direction is relative to the
// queried address.
type Transfer struct {
	Hash         string `json:"hash"`
	Counterparty string `json:"counterparty"`
	Value        string `json:"value"` // wei, decimal string
	Inbound      bool   `json:"inbound"`
	Block        string `json:"block"`
	TS           string `json:"ts"`
}

// Client queries the explorer API.
type Client struct {
	base   string
	apiKey string
	hc     *http.Client
}

// New returns a history client for the given explorer API url and key.
func New(base, apiKey string) *Client {
	return &Client{
		base:   base,
		apiKey: apiKey,
		hc:     &http.Client{Timeout: clientTimeout},
	}
}

// explorerResponse is the etherscan account/txlist envelope.
type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		Hash        string `json:"hash"`
		From        string `json:"from"`
		To          string `json:"to"`
		Value       string `json:"value"`
		BlockNumber string `json:"blockNumber"`
		TimeStamp   string `json:"timeStamp"`
	} `json:"result"`
}

// Transfers returns the transfers of addr in reverse chronological order. An empty slice with a nil error means the
// explorer found no transfers for the address; any other failure is returned as an error.
func (c *Client) Transfers(ctx context.Context, addr common.Address) ([]Transfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", addr.Hex())
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("sort", "desc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not query explorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer replied status %d", resp.StatusCode)
	}

	var er explorerResponse
	if err = json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("could not decode explorer response: %w", err)
	}
	if er.Status != "1" {
		// the explorer replies status "0" both for empty histories and for real errors
		if strings.EqualFold(er.Message, "No transactions found") {
			return []Transfer{}, nil
		}
		return nil, fmt.Errorf("explorer error: %s", er.Message)
	}

	me := strings.ToLower(addr.Hex())
	txs := make([]Transfer, 0, len(er.Result))
	for _, r := range er.Result {
		out := strings.ToLower(r.From) == me
		cp := r.From
		if out {
			cp = r.To
		}
		txs = append(txs, Transfer{
			Hash:         r.Hash,
			Counterparty: cp,
			Value:        r.Value,
			Inbound:      !out,
			Block:        r.BlockNumber,
			TS:           r.TimeStamp,
		})
	}
	return txs, nil
}
