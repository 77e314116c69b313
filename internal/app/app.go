// Package app wires the database, config, ledger client, engine and role
// synchronizer together for the CLI and server entry points.
package app

import (
	"database/sql"
	"fmt"
	"time"

	"taskanchor/internal/config"
	"taskanchor/internal/db"
	"taskanchor/internal/engine"
	"taskanchor/internal/ledger"
	"taskanchor/internal/migrate"
	"taskanchor/internal/rolesync"
)

// App holds the assembled components for one workspace.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Ledger ledger.Client
	Engine *engine.Engine
	Roles  *rolesync.Synchronizer
}

// Open builds an App for the workspace: opens and migrates the database,
// loads config (defaults if absent) and picks the ledger client the config
// names. Close the returned App when done.
func Open(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	client, err := NewLedgerClient(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &App{
		DB:     conn,
		Config: cfg,
		Ledger: client,
		Engine: engine.New(conn, client, cfg),
		Roles:  rolesync.New(conn, client, cfg.Ledger.MaxBatchSize),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// NewLedgerClient builds the client the config selects.
func NewLedgerClient(cfg *config.Config) (ledger.Client, error) {
	switch cfg.Ledger.Mode {
	case "memory":
		return ledger.NewMemory(), nil
	case "http":
		return ledger.NewHTTP(ledger.HTTPOptions{
			Endpoint:     cfg.Ledger.Endpoint,
			Contract:     cfg.Ledger.Contract,
			ChainID:      cfg.Ledger.ChainID,
			MaxBatchSize: cfg.Ledger.MaxBatchSize,
			Timeout:      time.Duration(cfg.Ledger.TimeoutSeconds) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown ledger mode %q", cfg.Ledger.Mode)
	}
}
