package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteTimeLayout = time.RFC3339Nano

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers, which makes every Modify
	// transaction exclusive without relying on SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployment records
	CREATE TABLE IF NOT EXISTS deployment_records (
		id TEXT PRIMARY KEY,
		contract_name TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		constructor_args TEXT NOT NULL DEFAULT '[]',
		tx_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		block_number INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		verification_attempts INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(contract_name, chain_id)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_deployment_records_chain ON deployment_records(chain_id);
	CREATE INDEX IF NOT EXISTS idx_deployment_records_status ON deployment_records(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

const sqliteRecordColumns = `id, contract_name, chain_id, address, constructor_args, tx_hash, status, block_number, verified, verification_attempts, created_at, updated_at`

// GetRecord retrieves a record by key
func (s *SQLiteStore) GetRecord(ctx context.Context, contractName string, chainID int64) (*DeploymentRecord, error) {
	return sqliteGet(ctx, s.db, contractName, chainID)
}

// UpsertRecord inserts or replaces the record with the same key
func (s *SQLiteStore) UpsertRecord(ctx context.Context, r *DeploymentRecord) (*DeploymentRecord, error) {
	return s.Modify(ctx, r.ContractName, r.ChainID, replaceWith(r))
}

// Modify performs a transactional read-modify-write of one record
func (s *SQLiteStore) Modify(ctx context.Context, contractName string, chainID int64, fn ModifyFunc) (*DeploymentRecord, error) {
	key := Key{ContractName: contractName, ChainID: chainID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := sqliteGet(ctx, tx, contractName, chainID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next, err := applyModify(key, current, fn, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	args, err := encodeArgs(next.ConstructorArgs)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO deployment_records (` + sqliteRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_name, chain_id) DO UPDATE SET
			address = excluded.address,
			constructor_args = excluded.constructor_args,
			tx_hash = excluded.tx_hash,
			status = excluded.status,
			block_number = excluded.block_number,
			verified = excluded.verified,
			verification_attempts = excluded.verification_attempts,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		next.ID, next.ContractName, next.ChainID, next.Address, args, next.TxHash, string(next.Status),
		next.BlockNumber, next.Verified, next.VerificationAttempts,
		next.CreatedAt.Format(sqliteTimeLayout), next.UpdatedAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting record %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing record %s: %w", key, err)
	}
	return next, nil
}

// ListRecords lists records ordered by chain ID then contract name
func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]DeploymentRecord, error) {
	var where []string
	var args []any
	if filter.ChainID != 0 {
		where = append(where, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Verified != nil {
		where = append(where, "verified = ?")
		args = append(args, *filter.Verified)
	}

	query := `SELECT ` + sqliteRecordColumns + ` FROM deployment_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY chain_id, contract_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func sqliteGet(ctx context.Context, q queryRower, contractName string, chainID int64) (*DeploymentRecord, error) {
	query := `SELECT ` + sqliteRecordColumns + ` FROM deployment_records WHERE contract_name = ? AND chain_id = ?`
	r, err := scanSQLiteRecord(q.QueryRowContext(ctx, query, contractName, chainID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func scanSQLiteRecord(row scanner) (*DeploymentRecord, error) {
	var r DeploymentRecord
	var args, status, createdAt, updatedAt string
	err := row.Scan(
		&r.ID, &r.ContractName, &r.ChainID, &r.Address, &args, &r.TxHash, &status,
		&r.BlockNumber, &r.Verified, &r.VerificationAttempts, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	if r.ConstructorArgs, err = decodeArgs(args); err != nil {
		return nil, err
	}
	r.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updatedAt)
	return &r, nil
}
