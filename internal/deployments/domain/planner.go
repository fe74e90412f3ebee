package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
	"github.com/pendergraft/contraship/internal/validation"
)

// Planner decides per contract whether to deploy or reuse the recorded deployment
type Planner struct {
	registry   *networks.Registry
	store      storage.RecordStore
	resolver   *Resolver
	reconciler *reconciler
	logger     *slog.Logger
}

// NewPlanner creates a planner
func NewPlanner(registry *networks.Registry, store storage.RecordStore, resolver *Resolver, nodes NodeProvider, reconcileCode bool, logger *slog.Logger) *Planner {
	return &Planner{
		registry: registry,
		store:    store,
		resolver: resolver,
		reconciler: &reconciler{
			store:     store,
			nodes:     nodes,
			checkCode: reconcileCode,
			logger:    logger,
		},
		logger: logger,
	}
}

// Plan builds the steps for contracts on chainID, in caller order. Every contract
// is checked before the first mock is deployed, so any resolution or lookup error
// aborts the whole plan without touching the chain.
func (p *Planner) Plan(ctx context.Context, contracts []ContractSpec, chainID int64) (*Plan, error) {
	desc, err := p.registry.Describe(chainID)
	if err != nil {
		return nil, err
	}

	if err := p.check(contracts, chainID, desc.Name); err != nil {
		return nil, err
	}

	plan := &Plan{ChainID: chainID, Network: desc.Name}
	for _, spec := range contracts {
		step, err := p.planContract(ctx, spec, chainID)
		if err != nil {
			return nil, fmt.Errorf("planning %s on %s: %w", spec.Name, desc.Name, err)
		}
		p.logger.Debug("planned",
			"contract", spec.Name,
			"chain_id", chainID,
			"action", step.Action,
			"args", step.ResolvedArgs,
		)
		plan.Steps = append(plan.Steps, *step)
	}
	return plan, nil
}

// check validates every contract, its dependencies and its argument template
func (p *Planner) check(contracts []ContractSpec, chainID int64, network string) error {
	seen := make(map[string]bool, len(contracts))
	for _, spec := range contracts {
		if err := validateSpec(spec); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("contract %s listed twice", spec.Name)
		}
		seen[spec.Name] = true

		addrs := make(map[string]string, len(spec.Dependencies))
		for _, dep := range spec.Dependencies {
			if err := p.resolver.Check(dep, chainID); err != nil {
				return fmt.Errorf("planning %s on %s: %w", spec.Name, network, err)
			}
			addrs[dep] = ""
		}
		if _, err := substituteArgs(spec, addrs); err != nil {
			return fmt.Errorf("planning %s on %s: %w", spec.Name, network, err)
		}
	}
	return nil
}

func (p *Planner) planContract(ctx context.Context, spec ContractSpec, chainID int64) (*PlanStep, error) {
	addrs, mocked, err := p.resolver.ResolveAll(ctx, spec.Dependencies, chainID)
	if err != nil {
		return nil, err
	}

	args, err := substituteArgs(spec, addrs)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.GetRecord(ctx, spec.Name, chainID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("looking up record: %w", err)
	}

	existing, usable, err := p.reconciler.reconcile(ctx, existing)
	if err != nil {
		return nil, err
	}

	step := &PlanStep{
		ContractName:  spec.Name,
		ResolvedArgs:  args,
		Existing:      existing,
		Spec:          spec,
		MocksDeployed: mocked,
	}
	switch {
	case usable && storage.ArgsEqual(existing.ConstructorArgs, args):
		step.Action = ActionSkip
	case len(mocked) > 0:
		step.Action = ActionMockThenDeploy
	default:
		step.Action = ActionDeploy
	}
	return step, nil
}

func validateSpec(spec ContractSpec) error {
	if err := validation.ValidateContractName(spec.Name); err != nil {
		return err
	}
	if spec.Artifact == nil {
		return fmt.Errorf("contract %s has no artifact", spec.Name)
	}
	for _, dep := range spec.Dependencies {
		if err := validation.ValidateDependencyName(dep); err != nil {
			return fmt.Errorf("contract %s: %w", spec.Name, err)
		}
	}
	return nil
}

// substituteArgs fills the constructor template with resolved addresses. An empty
// template yields the addresses in declared dependency order.
func substituteArgs(spec ContractSpec, addrs map[string]string) ([]any, error) {
	if len(spec.ConstructorArgs) == 0 {
		args := make([]any, 0, len(spec.Dependencies))
		for _, dep := range spec.Dependencies {
			args = append(args, addrs[dep])
		}
		return args, nil
	}

	args := make([]any, len(spec.ConstructorArgs))
	for i, v := range spec.ConstructorArgs {
		sub, err := substituteValue(v, spec.Dependencies, addrs)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = sub
	}
	return args, nil
}

func substituteValue(v any, deps []string, addrs map[string]string) (any, error) {
	switch x := v.(type) {
	case string:
		dep, ok := strings.CutPrefix(x, DependencyPlaceholder)
		if !ok {
			return x, nil
		}
		if !slices.Contains(deps, dep) {
			return nil, fmt.Errorf("%w: %q is not a declared dependency", ErrInvalidTemplate, dep)
		}
		return addrs[dep], nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			sub, err := substituteValue(item, deps, addrs)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	}
	return v, nil
}
