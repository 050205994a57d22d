package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigratedTables are the tables the embedded migrations create. Any other
// configured table is created on first use by EnsureQuoteTable.
var MigratedTables = []Table{
	{Schema: "student", Name: "stock"},
	{Schema: "student", Name: "historic_stock", Adjusted: true},
}

// Migrates reports whether t is created by the embedded migrations
func Migrates(t Table) bool {
	for _, m := range MigratedTables {
		if m == t {
			return true
		}
	}
	return false
}

// Migrate applies the embedded migrations for MigratedTables
func (db *DB) Migrate() error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
