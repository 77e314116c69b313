// Package rolesync keeps application roles and the contract's store-role ACL
// in lockstep. Admin and consultant map to an on-chain grant, member to a
// revoke.
package rolesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskanchor/internal/domain"
	"taskanchor/internal/events"
	"taskanchor/internal/ledger"
	"taskanchor/internal/repo"
)

var (
	ErrEmptyBatch    = errors.New("no role assignments provided")
	ErrBatchTooLarge = errors.New("role batch exceeds max batch size")
)

// Synchronizer applies role assignments item by item. The ledger write runs
// before the database update, the same ordering task creation uses, and both
// ledger operations are idempotent so a failed item can simply be retried.
type Synchronizer struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Ledger   ledger.Client
	MaxBatch int
	Now      func() time.Time
}

func New(db *sql.DB, client ledger.Client, maxBatch int) *Synchronizer {
	now := time.Now
	if maxBatch <= 0 {
		maxBatch = ledger.DefaultMaxBatchSize
	}
	return &Synchronizer{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db, Now: now},
		Ledger:   client,
		MaxBatch: maxBatch,
		Now:      now,
	}
}

func (s *Synchronizer) timestamp() string {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Assignment names one user and the role they should end up with.
type Assignment struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"admin,consultant,member"`
}

// ItemResult reports one assignment's outcome. Granted reflects the on-chain
// action taken: true for a grant, false for a revoke.
type ItemResult struct {
	UserID  string `json:"user_id"`
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty"`
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

type Result struct {
	Applied []ItemResult `json:"applied"`
	Failed  []ItemResult `json:"failed"`
	Total   int          `json:"total"`
}

// AssignRoles applies each assignment independently. The batch ceiling is
// checked before any item runs; after that one item's failure leaves the
// others applied.
func (s *Synchronizer) AssignRoles(ctx context.Context, actorID string, assignments []Assignment) (Result, error) {
	if len(assignments) == 0 {
		return Result{}, ErrEmptyBatch
	}
	if len(assignments) > s.MaxBatch {
		return Result{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(assignments), s.MaxBatch)
	}
	res := Result{Total: len(assignments)}
	for _, a := range assignments {
		item, err := s.assignOne(ctx, actorID, a)
		if err != nil {
			item.Error = err.Error()
			res.Failed = append(res.Failed, item)
			continue
		}
		res.Applied = append(res.Applied, item)
	}
	return res, nil
}

func (s *Synchronizer) assignOne(ctx context.Context, actorID string, a Assignment) (ItemResult, error) {
	item := ItemResult{UserID: a.UserID, Role: a.Role}
	if !domain.ValidRole(a.Role) {
		return item, fmt.Errorf("unknown role %q", a.Role)
	}
	user, err := s.Repo.GetUser(ctx, a.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return item, fmt.Errorf("user %s not found", a.UserID)
		}
		return item, err
	}
	item.Address = user.Address
	item.Granted = domain.PrivilegedRole(a.Role)

	if item.Granted {
		err = s.Ledger.GrantRole(ctx, []string{user.Address})
	} else {
		err = s.Ledger.RevokeRole(ctx, []string{user.Address})
	}
	if err != nil {
		return item, err
	}

	ts := s.timestamp()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return item, err
	}
	defer tx.Rollback()
	if err := s.Repo.UpdateUserRole(ctx, tx, user.ID, a.Role, ts); err != nil {
		return item, err
	}
	if err := s.Events.Append(ctx, tx, "role.assigned", "user", user.ID, actorID, events.EventPayload{
		"role":    a.Role,
		"address": user.Address,
		"granted": item.Granted,
	}); err != nil {
		return item, err
	}
	if err := tx.Commit(); err != nil {
		return item, err
	}
	return item, nil
}

// Check compares each user's database role against the contract ACL and
// reports the users whose on-chain state disagrees.
type Drift struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
	Role    string `json:"role"`
	OnChain bool   `json:"on_chain"`
}

func (s *Synchronizer) Check(ctx context.Context, userIDs []string) ([]Drift, error) {
	var users []domain.User
	if len(userIDs) == 0 {
		all, err := s.Repo.ListUsers(ctx, "")
		if err != nil {
			return nil, err
		}
		users = all
	} else {
		for _, id := range userIDs {
			u, err := s.Repo.GetUser(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("user %s: %w", id, err)
			}
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		return nil, nil
	}

	var drifts []Drift
	for start := 0; start < len(users); start += s.MaxBatch {
		end := start + s.MaxBatch
		if end > len(users) {
			end = len(users)
		}
		chunk := users[start:end]
		addrs := make([]string, len(chunk))
		for i, u := range chunk {
			addrs[i] = u.Address
		}
		onChain, err := s.Ledger.HasRole(ctx, addrs)
		if err != nil {
			return nil, err
		}
		for i, u := range chunk {
			if domain.PrivilegedRole(u.Role) != onChain[i] {
				drifts = append(drifts, Drift{UserID: u.ID, Address: u.Address, Role: u.Role, OnChain: onChain[i]})
			}
		}
	}
	return drifts, nil
}
