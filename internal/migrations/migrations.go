// Package migrations embeds the goose SQL migrations for the local key-value
// store and for the vault schema, and runs them through a goose Provider.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed store/*.sql vault/*.sql
var embedded embed.FS

// Store returns the migrations of the key-value store (metadata table).
func Store() fs.FS { return sub("store") }

// Vault returns the migrations of the vault schema.
func Vault() fs.FS { return sub("vault") }

func sub(dir string) fs.FS {
	f, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(err)
	}
	return f
}

// RunStore brings the key-value store schema up to date.
func RunStore(ctx context.Context, db *sql.DB) error {
	return run(ctx, db, Store())
}

// RunVault applies the vault schema without recording versions, so the
// resulting database holds only vault tables.
func RunVault(ctx context.Context, db *sql.DB) error {
	return run(ctx, db, Vault(), goose.WithDisableVersioning(true))
}

func run(ctx context.Context, db *sql.DB, fsys fs.FS, opts ...goose.ProviderOption) error {
	// the Provider is not closed: Close would close db, which the caller owns
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys, opts...)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
