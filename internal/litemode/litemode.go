// Package litemode opens the lead and audit stores against a local SQLite
// file instead of Postgres, for single-binary local runs that don't have a
// database server handy. Grounded on the teacher's cmd/helm lite-mode
// fallback (open a sqlite file under a local data directory, wire the same
// store interfaces the Postgres path uses).
package litemode

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leadcatalyst/core/pkg/audit"
	"github.com/leadcatalyst/core/pkg/lead"
)

// Prefix marks a Config.DatabaseURL as a lite-mode path rather than a
// Postgres DSN, e.g. "sqlite:///data/leadcatalyst.db".
const Prefix = "sqlite://"

// Enabled reports whether databaseURL opts into lite mode.
func Enabled(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, Prefix)
}

// Open parses a lite-mode databaseURL, opens the SQLite file (creating its
// parent directory if needed), and returns lead/audit stores backed by it
// alongside the underlying *sql.DB for the caller to close.
func Open(ctx context.Context, databaseURL string) (lead.Store, audit.Store, *sql.DB, error) {
	path := strings.TrimPrefix(databaseURL, Prefix)
	if path == "" {
		path = "data/leadcatalyst.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, nil, fmt.Errorf("litemode: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("litemode: open sqlite: %w", err)
	}

	leadStore := lead.NewSQLiteStore(db)
	if err := leadStore.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("litemode: ensure lead schema: %w", err)
	}
	auditStore := audit.NewSQLiteStore(db)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("litemode: ensure audit schema: %w", err)
	}

	return leadStore, auditStore, db, nil
}
