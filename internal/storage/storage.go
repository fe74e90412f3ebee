package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pendergraft/contraship/internal/config"
)

// Status is the lifecycle state of a deployment record
type Status string

const (
	// StatusPending means the transaction was submitted but not yet confirmed
	StatusPending Status = "pending"
	// StatusDeployed means the contract is confirmed on chain
	StatusDeployed Status = "deployed"
	// StatusFailed means the transaction reverted, was dropped or never confirmed
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDeployed, StatusFailed:
		return true
	}
	return false
}

// DeploymentRecord is a persisted deployment, unique per (ContractName, ChainID)
type DeploymentRecord struct {
	ID                   string
	ContractName         string
	ChainID              int64
	Address              string
	ConstructorArgs      []any
	TxHash               string
	Status               Status
	BlockNumber          int64
	Verified             bool
	VerificationAttempts int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Key returns the record's unique key
func (r *DeploymentRecord) Key() Key {
	return Key{ContractName: r.ContractName, ChainID: r.ChainID}
}

// Clone returns a deep copy of the record
func (r *DeploymentRecord) Clone() *DeploymentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ConstructorArgs = slices.Clone(r.ConstructorArgs)
	return &c
}

// Key identifies a deployment record
type Key struct {
	ContractName string
	ChainID      int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.ContractName, k.ChainID)
}

// ModifyFunc receives the current record (nil when absent) and returns the record to
// persist. Returning a nil record leaves the store untouched.
type ModifyFunc func(current *DeploymentRecord) (*DeploymentRecord, error)

// RecordFilter contains filter options for listing records
type RecordFilter struct {
	ChainID  int64 // 0 = all chains
	Status   Status
	Verified *bool
}

// RecordStore handles deployment record operations
type RecordStore interface {
	GetRecord(ctx context.Context, contractName string, chainID int64) (*DeploymentRecord, error)
	UpsertRecord(ctx context.Context, r *DeploymentRecord) (*DeploymentRecord, error)
	// Modify performs an atomic read-modify-write of one key. Calls for the same key
	// never interleave.
	Modify(ctx context.Context, contractName string, chainID int64, fn ModifyFunc) (*DeploymentRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]DeploymentRecord, error)
}

// Store combines the record store with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	RecordStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
