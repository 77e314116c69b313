package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taskanchor/internal/domain"
	"taskanchor/internal/events"
	"taskanchor/internal/repo"
)

// ErrDuplicateAddress rejects a second user with an address already on file.
var ErrDuplicateAddress = errors.New("user with this address already exists")

// CreateUser registers a ledger account under a role. New users never get an
// implicit on-chain grant; that is the role synchronizer's job.
func (e *Engine) CreateUser(ctx context.Context, address, role, name string) (domain.User, error) {
	if address == "" {
		return domain.User{}, errors.New("address is required")
	}
	if !domain.ValidRole(role) {
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	ts := e.timestamp()
	u := domain.User{
		ID:        uuid.NewString(),
		Address:   address,
		Role:      role,
		Name:      name,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			return domain.User{}, ErrDuplicateAddress
		}
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.ID, u.ID, events.EventPayload{
		"address": u.Address,
		"role":    u.Role,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateAPIKey mints a key for a user and returns the plaintext once. Only
// the hash is stored.
func (e *Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.APIKey{}, "", ErrUserNotFound
		}
		return domain.APIKey{}, "", err
	}
	plaintext := "tak_" + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}
