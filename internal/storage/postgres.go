package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployment records
	CREATE TABLE IF NOT EXISTS deployment_records (
		id UUID PRIMARY KEY,
		contract_name TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		constructor_args JSONB NOT NULL DEFAULT '[]',
		tx_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		block_number BIGINT NOT NULL DEFAULT 0,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
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

const postgresRecordColumns = `id, contract_name, chain_id, address, constructor_args::text, tx_hash, status, block_number, verified, verification_attempts, created_at, updated_at`

// GetRecord retrieves a record by key
func (s *PostgresStore) GetRecord(ctx context.Context, contractName string, chainID int64) (*DeploymentRecord, error) {
	return postgresGet(ctx, s.db, contractName, chainID, false)
}

// UpsertRecord inserts or replaces the record with the same key
func (s *PostgresStore) UpsertRecord(ctx context.Context, r *DeploymentRecord) (*DeploymentRecord, error) {
	return s.Modify(ctx, r.ContractName, r.ChainID, replaceWith(r))
}

// Modify performs a transactional read-modify-write of one record. A transaction-scoped
// advisory lock on the key also covers records that do not exist yet.
func (s *PostgresStore) Modify(ctx context.Context, contractName string, chainID int64, fn ModifyFunc) (*DeploymentRecord, error) {
	key := Key{ContractName: contractName, ChainID: chainID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return nil, fmt.Errorf("locking record %s: %w", key, err)
	}

	current, err := postgresGet(ctx, tx, contractName, chainID, true)
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
		INSERT INTO deployment_records (id, contract_name, chain_id, address, constructor_args, tx_hash, status, block_number, verified, verification_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (contract_name, chain_id) DO UPDATE SET
			address = EXCLUDED.address,
			constructor_args = EXCLUDED.constructor_args,
			tx_hash = EXCLUDED.tx_hash,
			status = EXCLUDED.status,
			block_number = EXCLUDED.block_number,
			verified = EXCLUDED.verified,
			verification_attempts = EXCLUDED.verification_attempts,
			updated_at = EXCLUDED.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		next.ID, next.ContractName, next.ChainID, next.Address, args, next.TxHash, string(next.Status),
		next.BlockNumber, next.Verified, next.VerificationAttempts, next.CreatedAt, next.UpdatedAt,
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
func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]DeploymentRecord, error) {
	var where []string
	var args []any
	if filter.ChainID != 0 {
		args = append(args, filter.ChainID)
		where = append(where, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Verified != nil {
		args = append(args, *filter.Verified)
		where = append(where, fmt.Sprintf("verified = $%d", len(args)))
	}

	query := `SELECT ` + postgresRecordColumns + ` FROM deployment_records`
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
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func postgresGet(ctx context.Context, q queryRower, contractName string, chainID int64, forUpdate bool) (*DeploymentRecord, error) {
	query := `SELECT ` + postgresRecordColumns + ` FROM deployment_records WHERE contract_name = $1 AND chain_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	r, err := scanPostgresRecord(q.QueryRowContext(ctx, query, contractName, chainID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func scanPostgresRecord(row scanner) (*DeploymentRecord, error) {
	var r DeploymentRecord
	var args, status string
	err := row.Scan(
		&r.ID, &r.ContractName, &r.ChainID, &r.Address, &args, &r.TxHash, &status,
		&r.BlockNumber, &r.Verified, &r.VerificationAttempts, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	if r.ConstructorArgs, err = decodeArgs(args); err != nil {
		return nil, err
	}
	return &r, nil
}
