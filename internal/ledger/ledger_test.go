package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMemoryCommitAndDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ref, err := m.Commit(ctx, "abc", "0x1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ref == "" {
		t.Fatalf("expected tx ref")
	}
	ok, err := m.HasCommitment(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected committed, got %v %v", ok, err)
	}
	_, err = m.Commit(ctx, "abc", "0x1")
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}
	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *ledger.Error, got %T", err)
	}
}

func TestMemoryBatchCeiling(t *testing.T) {
	m := NewMemory()
	hashes := make([]string, DefaultMaxBatchSize+1)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("h%d", i)
	}
	_, err := m.CommitBatch(context.Background(), hashes, "0x1")
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, err := m.CommitBatch(context.Background(), hashes[:DefaultMaxBatchSize], "0x1"); err != nil {
		t.Fatalf("max-size batch should pass: %v", err)
	}
	_, err = m.CommitBatch(context.Background(), nil, "0x1")
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestMemoryRoles(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.GrantRole(ctx, []string{"0xa", "0xb"}); err != nil {
		t.Fatal(err)
	}
	if err := m.RevokeRole(ctx, []string{"0xb"}); err != nil {
		t.Fatal(err)
	}
	got, err := m.HasRole(ctx, []string{"0xa", "0xb", "0xc"})
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("membership %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestHTTPCommitAndConflict(t *testing.T) {
	var gotReq commitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/commit":
			_ = json.NewDecoder(r.Body).Decode(&gotReq)
			if gotReq.Hashes[0] == "dup" {
				w.WriteHeader(http.StatusConflict)
				return
			}
			_ = json.NewEncoder(w).Encode(commitResponse{TxRef: "0xfeed"})
		case "/constants":
			_ = json.NewEncoder(w).Encode(Constants{StoreRole: "STORE_ROLE", MaxBatchSize: 20, ChainID: 5, Contract: "0xc"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTP(HTTPOptions{Endpoint: srv.URL, Contract: "0xc", ChainID: 5})
	ref, err := c.Commit(context.Background(), "abc", "0xacct")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ref != "0xfeed" {
		t.Fatalf("unexpected ref %s", ref)
	}
	if gotReq.Contract != "0xc" || gotReq.ChainID != 5 || gotReq.Account != "0xacct" {
		t.Fatalf("request not keyed to contract/chain/account: %+v", gotReq)
	}

	_, err = c.Commit(context.Background(), "dup", "0xacct")
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}

	consts, err := c.Constants(context.Background())
	if err != nil {
		t.Fatalf("constants: %v", err)
	}
	if consts.MaxBatchSize != 20 || consts.StoreRole != "STORE_ROLE" {
		t.Fatalf("unexpected constants: %+v", consts)
	}
}

func TestHTTPBatchCeilingLocal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(commitResponse{TxRef: "0x1"})
	}))
	defer srv.Close()

	c := NewHTTP(HTTPOptions{Endpoint: srv.URL, Contract: "0xc"})
	hashes := make([]string, DefaultMaxBatchSize+1)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("h%d", i)
	}
	_, err := c.CommitBatch(context.Background(), hashes, "0xacct")
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("oversized batch must be rejected before any RPC, saw %d calls", calls)
	}
}
