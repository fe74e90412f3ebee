package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
	"github.com/pendergraft/contraship/internal/validation"
)

// Service is the read side of the artifact store.
type Service interface {
	// Get retrieves the record for a contract on a chain.
	Get(ctx context.Context, chainID int64, contract string) (*Deployment, error)

	// List lists records matching filter, ordered by chain and contract name.
	List(ctx context.Context, filter ListFilter) ([]Deployment, error)
}

// Deployment is a deployment record annotated with its network name.
type Deployment struct {
	ContractName         string
	ChainID              int64
	Network              string
	Address              string
	ConstructorArgs      []any
	TxHash               string
	Status               storage.Status
	BlockNumber          int64
	Verified             bool
	VerificationAttempts int
	Mock                 bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	ChainID      int64
	Status       storage.Status
	Verified     *bool
	IncludeMocks bool
}

type service struct {
	store    storage.RecordStore
	registry *networks.Registry
}

// NewService creates a new query service.
func NewService(store storage.RecordStore, registry *networks.Registry) Service {
	return &service{store: store, registry: registry}
}

func (s *service) Get(ctx context.Context, chainID int64, contract string) (*Deployment, error) {
	if err := validation.ValidateChainID(chainID); err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecord(ctx, contract, chainID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return s.toDeployment(rec), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]Deployment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", filter.Status)
	}
	recs, err := s.store.ListRecords(ctx, storage.RecordFilter{
		ChainID:  filter.ChainID,
		Status:   filter.Status,
		Verified: filter.Verified,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	out := make([]Deployment, 0, len(recs))
	for i := range recs {
		if !filter.IncludeMocks && isMockRecord(recs[i].ContractName) {
			continue
		}
		out = append(out, *s.toDeployment(&recs[i]))
	}
	return out, nil
}

func (s *service) toDeployment(r *storage.DeploymentRecord) *Deployment {
	d := &Deployment{
		ContractName:         r.ContractName,
		ChainID:              r.ChainID,
		Address:              r.Address,
		ConstructorArgs:      r.ConstructorArgs,
		TxHash:               r.TxHash,
		Status:               r.Status,
		BlockNumber:          r.BlockNumber,
		Verified:             r.Verified,
		VerificationAttempts: r.VerificationAttempts,
		Mock:                 isMockRecord(r.ContractName),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if s.registry != nil {
		if desc, err := s.registry.Describe(r.ChainID); err == nil {
			d.Network = desc.Name
		}
	}
	return d
}
