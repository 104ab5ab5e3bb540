// Package storage implements the relayer's PostgreSQL persistence layer:
// the canonical Merkle tree, the nullifier and deposit-marker tables, and
// the per-submission outcome ledger (§3, §4.3, §6).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrNotFound     = errors.New("storage: not found")
	ErrDBConnection = errors.New("storage: database connection error")
)

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "relayer",
		Password: "",
		Database: "relayer",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// Store wraps a pgx connection pool. MerkleStore, MarkerStore and
// LedgerStore are built on it and implement zkp.MerkleStore,
// zkp.MarkerStore, and the submission Ledger.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and pings it before returning.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)
	return newFromConnString(ctx, connString)
}

// NewFromDSN connects using a caller-assembled DSN directly, the form a
// single environment variable (RELAYER_DATABASE_DSN) naturally carries.
func NewFromDSN(ctx context.Context, dsn string) (*Store, error) {
	return newFromConnString(ctx, dsn)
}

func newFromConnString(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the schema idempotently. It is intentionally a single
// flat script rather than a versioned migration chain — the teacher's
// own deployment had no migration tool either, and the relayer's schema
// is small and stable enough that "CREATE TABLE IF NOT EXISTS" suffices.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("storage: applying schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS merkle_meta (
	tree_id     INTEGER PRIMARY KEY,
	depth       SMALLINT NOT NULL,
	next_index  BIGINT NOT NULL DEFAULT 0,
	root        BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS merkle_leaves (
	tree_id     INTEGER NOT NULL REFERENCES merkle_meta(tree_id),
	leaf_index  BIGINT NOT NULL,
	commitment  BYTEA NOT NULL,
	PRIMARY KEY (tree_id, leaf_index)
);

CREATE UNIQUE INDEX IF NOT EXISTS merkle_leaves_by_commitment
	ON merkle_leaves (tree_id, commitment);

CREATE TABLE IF NOT EXISTS merkle_nodes (
	tree_id      INTEGER NOT NULL REFERENCES merkle_meta(tree_id),
	layer        SMALLINT NOT NULL,
	node_index   BIGINT NOT NULL,
	value        BYTEA NOT NULL,
	PRIMARY KEY (tree_id, layer, node_index)
);

CREATE TABLE IF NOT EXISTS merkle_roots (
	tree_id      INTEGER NOT NULL REFERENCES merkle_meta(tree_id),
	seq          BIGINT NOT NULL,
	root         BYTEA NOT NULL,
	PRIMARY KEY (tree_id, seq)
);

CREATE TABLE IF NOT EXISTS nullifiers (
	nullifier       BYTEA PRIMARY KEY,
	submission_id   TEXT NOT NULL,
	tx_signature    TEXT NOT NULL DEFAULT '',
	spent_at_slot   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS deposit_markers (
	deposit_hash    BYTEA PRIMARY KEY,
	submission_id   TEXT NOT NULL,
	tx_signature    TEXT NOT NULL DEFAULT '',
	spent_at_slot   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	submission_id   TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	state           TEXT NOT NULL,
	tree_id         INTEGER,
	tx_signature    TEXT,
	error_kind      TEXT,
	error_message   TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
