// Package ledger wraps the commitment contract's RPC surface. All writes go
// through one signing account, so implementations serialize them; batch
// operations are bounded by the contract's execution-cost ceiling and
// rejected locally before any RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxBatchSize mirrors the contract's batch ceiling. Constants()
// reports the authoritative value; callers enforce it before calling in.
const DefaultMaxBatchSize = 20

var (
	// ErrBatchTooLarge is returned before any RPC when a batch exceeds the
	// contract ceiling.
	ErrBatchTooLarge = errors.New("batch exceeds ledger max batch size")
	// ErrAlreadyCommitted is returned when a hash is already anchored. The
	// contract enforces this independently of the repository's
	// transaction-id uniqueness.
	ErrAlreadyCommitted = errors.New("hash already committed")
	// ErrEmptyBatch rejects zero-item submissions.
	ErrEmptyBatch = errors.New("empty batch")
)

// Error carries the failing operation alongside the underlying RPC failure.
// No partial on-chain state exists after an Error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Constants are the contract parameters read at startup.
type Constants struct {
	StoreRole    string `json:"store_role"`
	MaxBatchSize int    `json:"max_batch_size"`
	ChainID      int64  `json:"chain_id"`
	Contract     string `json:"contract"`
}

// Client is the ledger surface the engine and role synchronizer consume.
// Implementations must keep writes from the signing account serialized.
type Client interface {
	// Commit anchors one hash and returns the ledger transaction reference.
	Commit(ctx context.Context, hash, account string) (string, error)
	// CommitBatch anchors up to MaxBatchSize hashes atomically.
	CommitBatch(ctx context.Context, hashes []string, account string) (string, error)
	// GrantRole adds addresses to the contract's store-role ACL. Idempotent.
	GrantRole(ctx context.Context, addresses []string) error
	// RevokeRole removes addresses from the ACL. Idempotent.
	RevokeRole(ctx context.Context, addresses []string) error
	// HasRole reports ACL membership per address, in input order.
	HasRole(ctx context.Context, addresses []string) ([]bool, error)
	// HasCommitment reports whether a hash is anchored. Read-only.
	HasCommitment(ctx context.Context, hash string) (bool, error)
	// Balance returns the account's balance in base units as a decimal string.
	Balance(ctx context.Context, account string) (string, error)
	// Constants reads the contract parameters.
	Constants(ctx context.Context) (Constants, error)
}

func checkBatch(n, max int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if max <= 0 {
		max = DefaultMaxBatchSize
	}
	if n > max {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, max)
	}
	return nil
}
