package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTP talks to the contract gateway. Every call is keyed to one contract
// address and chain; write calls share a mutex because the gateway signs
// them all from the same account and transaction ordering matters.
type HTTP struct {
	baseURL  string
	contract string
	chainID  int64
	maxBatch int
	client   *http.Client

	writeMu sync.Mutex
}

type HTTPOptions struct {
	Endpoint     string
	Contract     string
	ChainID      int64
	MaxBatchSize int
	Timeout      time.Duration
}

// NewHTTP builds a gateway client.
func NewHTTP(opts HTTPOptions) *HTTP {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxBatch := opts.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &HTTP{
		baseURL:  strings.TrimRight(opts.Endpoint, "/"),
		contract: opts.Contract,
		chainID:  opts.ChainID,
		maxBatch: maxBatch,
		client:   &http.Client{Timeout: timeout},
	}
}

type commitRequest struct {
	Contract string   `json:"contract"`
	ChainID  int64    `json:"chain_id"`
	Account  string   `json:"account"`
	Hashes   []string `json:"hashes"`
}

type commitResponse struct {
	TxRef string `json:"tx_ref"`
}

type roleRequest struct {
	Contract  string   `json:"contract"`
	ChainID   int64    `json:"chain_id"`
	Addresses []string `json:"addresses"`
}

type hasRoleResponse struct {
	Members []bool `json:"members"`
}

type hasCommitmentResponse struct {
	Committed bool `json:"committed"`
}

type balanceResponse struct {
	Amount string `json:"amount"`
}

func (h *HTTP) Commit(ctx context.Context, hash, account string) (string, error) {
	return h.commit(ctx, "commit", []string{hash}, account)
}

func (h *HTTP) CommitBatch(ctx context.Context, hashes []string, account string) (string, error) {
	if err := checkBatch(len(hashes), h.maxBatch); err != nil {
		return "", &Error{Op: "commit-batch", Err: err}
	}
	return h.commit(ctx, "commit-batch", hashes, account)
}

func (h *HTTP) commit(ctx context.Context, op string, hashes []string, account string) (string, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	var resp commitResponse
	err := h.do(ctx, http.MethodPost, "/"+op, commitRequest{
		Contract: h.contract,
		ChainID:  h.chainID,
		Account:  account,
		Hashes:   hashes,
	}, &resp)
	if err != nil {
		return "", &Error{Op: op, Err: err}
	}
	if resp.TxRef == "" {
		return "", &Error{Op: op, Err: fmt.Errorf("gateway returned empty tx_ref")}
	}
	return resp.TxRef, nil
}

func (h *HTTP) GrantRole(ctx context.Context, addresses []string) error {
	return h.roleWrite(ctx, "roles/grant", addresses)
}

func (h *HTTP) RevokeRole(ctx context.Context, addresses []string) error {
	return h.roleWrite(ctx, "roles/revoke", addresses)
}

func (h *HTTP) roleWrite(ctx context.Context, op string, addresses []string) error {
	if err := checkBatch(len(addresses), h.maxBatch); err != nil {
		return &Error{Op: op, Err: err}
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	err := h.do(ctx, http.MethodPost, "/"+op, roleRequest{
		Contract:  h.contract,
		ChainID:   h.chainID,
		Addresses: addresses,
	}, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

func (h *HTTP) HasRole(ctx context.Context, addresses []string) ([]bool, error) {
	if err := checkBatch(len(addresses), h.maxBatch); err != nil {
		return nil, &Error{Op: "roles/has", Err: err}
	}
	var resp hasRoleResponse
	err := h.do(ctx, http.MethodPost, "/roles/has", roleRequest{
		Contract:  h.contract,
		ChainID:   h.chainID,
		Addresses: addresses,
	}, &resp)
	if err != nil {
		return nil, &Error{Op: "roles/has", Err: err}
	}
	if len(resp.Members) != len(addresses) {
		return nil, &Error{Op: "roles/has", Err: fmt.Errorf("gateway returned %d results for %d addresses", len(resp.Members), len(addresses))}
	}
	return resp.Members, nil
}

func (h *HTTP) HasCommitment(ctx context.Context, hash string) (bool, error) {
	var resp hasCommitmentResponse
	err := h.do(ctx, http.MethodGet, "/commitments/"+hash, nil, &resp)
	if err != nil {
		return false, &Error{Op: "commitments", Err: err}
	}
	return resp.Committed, nil
}

func (h *HTTP) Balance(ctx context.Context, account string) (string, error) {
	var resp balanceResponse
	err := h.do(ctx, http.MethodGet, "/accounts/"+account+"/balance", nil, &resp)
	if err != nil {
		return "", &Error{Op: "balance", Err: err}
	}
	return resp.Amount, nil
}

func (h *HTTP) Constants(ctx context.Context) (Constants, error) {
	var resp Constants
	err := h.do(ctx, http.MethodGet, "/constants", nil, &resp)
	if err != nil {
		return Constants{}, &Error{Op: "constants", Err: err}
	}
	return resp, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return ErrAlreadyCommitted
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ Client = (*HTTP)(nil)
