package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
)

// Resolver maps a dependency name to an address on a chain. Development networks
// always get a mock, deployed on first use; other networks use the registry's
// known addresses.
type Resolver struct {
	registry   *networks.Registry
	store      storage.RecordStore
	deployer   *Deployer
	reconciler *reconciler
	mocks      map[string]MockSpec
	logger     *slog.Logger
}

// NewResolver creates a resolver. mocks is keyed by dependency name.
func NewResolver(registry *networks.Registry, store storage.RecordStore, deployer *Deployer, nodes NodeProvider, mocks map[string]MockSpec, reconcileCode bool, logger *slog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		store:    store,
		deployer: deployer,
		reconciler: &reconciler{
			store:     store,
			nodes:     nodes,
			checkCode: reconcileCode,
			logger:    logger,
		},
		mocks:  mocks,
		logger: logger,
	}
}

// Resolve returns the address to use for dependency on chainID
func (r *Resolver) Resolve(ctx context.Context, dependency string, chainID int64) (string, error) {
	addr, _, err := r.resolve(ctx, dependency, chainID)
	return addr, err
}

// ResolveAll resolves dependencies in order and reports which of them needed a
// fresh mock deployment
func (r *Resolver) ResolveAll(ctx context.Context, dependencies []string, chainID int64) (map[string]string, []string, error) {
	addrs := make(map[string]string, len(dependencies))
	var mocked []string
	for _, dep := range dependencies {
		if _, ok := addrs[dep]; ok {
			continue
		}
		addr, deployed, err := r.resolve(ctx, dep, chainID)
		if err != nil {
			return nil, nil, err
		}
		addrs[dep] = addr
		if deployed {
			mocked = append(mocked, dep)
		}
	}
	return addrs, mocked, nil
}

// Check reports whether dependency can be resolved on chainID without deploying
// or reading anything
func (r *Resolver) Check(dependency string, chainID int64) error {
	desc, err := r.registry.Describe(chainID)
	if err != nil {
		return err
	}

	if !r.registry.IsDevelopmentNetwork(chainID) {
		if _, ok := desc.KnownAddress(dependency); !ok {
			return fmt.Errorf("%w: %s on %s (%d)", ErrMissingDependencyAddress, dependency, desc.Name, chainID)
		}
		return nil
	}

	mock, ok := r.mocks[dependency]
	if !ok {
		return fmt.Errorf("%w: no mock configured for %s on development network %s (%d)",
			ErrMissingDependencyAddress, dependency, desc.Name, chainID)
	}
	if mock.Artifact == nil {
		return fmt.Errorf("%w: mock %s for %s has no artifact", ErrMissingDependencyAddress, mock.ContractName, dependency)
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, dependency string, chainID int64) (string, bool, error) {
	desc, err := r.registry.Describe(chainID)
	if err != nil {
		return "", false, err
	}

	if !r.registry.IsDevelopmentNetwork(chainID) {
		addr, ok := desc.KnownAddress(dependency)
		if !ok {
			return "", false, fmt.Errorf("%w: %s on %s (%d)", ErrMissingDependencyAddress, dependency, desc.Name, chainID)
		}
		return addr, false, nil
	}

	mock, ok := r.mocks[dependency]
	if !ok {
		return "", false, fmt.Errorf("%w: no mock configured for %s on development network %s (%d)",
			ErrMissingDependencyAddress, dependency, desc.Name, chainID)
	}

	name := MockRecordName(dependency)
	existing, err := r.store.GetRecord(ctx, name, chainID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", false, fmt.Errorf("looking up mock for %s: %w", dependency, err)
	}

	existing, usable, err := r.reconciler.reconcile(ctx, existing)
	if err != nil {
		return "", false, err
	}
	if usable && storage.ArgsEqual(existing.ConstructorArgs, mock.ConstructorArgs) {
		return existing.Address, false, nil
	}

	r.logger.Info("local network detected, deploying mock",
		"dependency", dependency,
		"mock", mock.ContractName,
		"chain_id", chainID,
	)

	artifact := mock.Artifact
	if artifact == nil {
		return "", false, fmt.Errorf("%w: mock %s for %s has no artifact", ErrMissingDependencyAddress, mock.ContractName, dependency)
	}

	rec, err := r.deployer.Execute(ctx, PlanStep{
		ContractName: name,
		Action:       ActionDeploy,
		ResolvedArgs: mock.ConstructorArgs,
		Existing:     existing,
		Spec: ContractSpec{
			Name:            name,
			Artifact:        artifact,
			ConstructorArgs: mock.ConstructorArgs,
		},
	}, chainID)
	if err != nil {
		return "", false, fmt.Errorf("deploying mock %s for %s: %w", mock.ContractName, dependency, err)
	}

	r.logger.Info("mock deployed", "dependency", dependency, "address", rec.Address)
	return rec.Address, true, nil
}
