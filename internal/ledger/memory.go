package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process ledger used for local development and tests. It
// enforces the same duplicate-commitment and batch-ceiling rules as the
// contract so callers exercised against it behave against the real thing.
type Memory struct {
	mu          sync.Mutex
	maxBatch    int
	commitments map[string]string
	roles       map[string]bool
	balances    map[string]string
	seq         int
}

func NewMemory() *Memory {
	return &Memory{
		maxBatch:    DefaultMaxBatchSize,
		commitments: map[string]string{},
		roles:       map[string]bool{},
		balances:    map[string]string{},
	}
}

// SetBalance seeds an account balance for dev setups.
func (m *Memory) SetBalance(account, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = amount
}

func (m *Memory) Commit(ctx context.Context, hash, account string) (string, error) {
	return m.CommitBatch(ctx, []string{hash}, account)
}

func (m *Memory) CommitBatch(ctx context.Context, hashes []string, account string) (string, error) {
	if err := checkBatch(len(hashes), m.maxBatch); err != nil {
		return "", &Error{Op: "commit-batch", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		if _, ok := m.commitments[h]; ok {
			return "", &Error{Op: "commit", Err: fmt.Errorf("%w: %s", ErrAlreadyCommitted, h)}
		}
	}
	m.seq++
	ref := fmt.Sprintf("0xmem%08d", m.seq)
	for _, h := range hashes {
		m.commitments[h] = ref
	}
	return ref, nil
}

func (m *Memory) GrantRole(ctx context.Context, addresses []string) error {
	if err := checkBatch(len(addresses), m.maxBatch); err != nil {
		return &Error{Op: "roles/grant", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range addresses {
		m.roles[a] = true
	}
	return nil
}

func (m *Memory) RevokeRole(ctx context.Context, addresses []string) error {
	if err := checkBatch(len(addresses), m.maxBatch); err != nil {
		return &Error{Op: "roles/revoke", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range addresses {
		delete(m.roles, a)
	}
	return nil
}

func (m *Memory) HasRole(ctx context.Context, addresses []string) ([]bool, error) {
	if err := checkBatch(len(addresses), m.maxBatch); err != nil {
		return nil, &Error{Op: "roles/has", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(addresses))
	for i, a := range addresses {
		out[i] = m.roles[a]
	}
	return out, nil
}

func (m *Memory) HasCommitment(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.commitments[hash]
	return ok, nil
}

func (m *Memory) Balance(ctx context.Context, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount, ok := m.balances[account]; ok {
		return amount, nil
	}
	return "0", nil
}

func (m *Memory) Constants(ctx context.Context) (Constants, error) {
	return Constants{
		StoreRole:    "STORE_ROLE",
		MaxBatchSize: m.maxBatch,
		ChainID:      0,
		Contract:     "memory",
	}, nil
}

var _ Client = (*Memory)(nil)
