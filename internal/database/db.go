package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/trogers1052/stock-dashboard/internal/config"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	conn *sql.DB
}

// New opens a connection pool and verifies it with a ping
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Session reserves a single connection for one unit of work and returns it
// to the pool when fn returns, whatever the outcome.
func (db *DB) Session(ctx context.Context, fn func(*Session) error) error {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(&Session{conn: conn})
}

// WithDB opens a pool from cfg, runs fn and closes the pool again
func WithDB(ctx context.Context, cfg config.DatabaseConfig, fn func(*DB) error) error {
	db, err := New(cfg.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(db)
}

// Session is a single reserved connection. Statements run in autocommit
// mode, so every insert is committed on its own.
type Session struct {
	conn *sql.Conn
}
