package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/observability/metrics"
)

var separator = strings.Repeat("-", 50)

// Orchestrator runs plan, deploy and verify for one or more chains
type Orchestrator struct {
	registry *networks.Registry
	planner  *Planner
	deployer *Deployer
	verifier *Verifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(registry *networks.Registry, planner *Planner, deployer *Deployer, verifier *Verifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		planner:  planner,
		deployer: deployer,
		verifier: verifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run deploys contracts on chainID. Planning errors abort the run before anything
// is executed. Deployment errors are recorded per contract and the run continues;
// verification errors never fail a contract.
func (o *Orchestrator) Run(ctx context.Context, chainID int64, contracts []ContractSpec) (*RunReport, error) {
	desc, err := o.registry.Describe(chainID)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:     uuid.New().String(),
		ChainID:   chainID,
		Network:   desc.Name,
		StartedAt: o.now(),
	}
	logger := o.logger.With("run_id", report.RunID, "chain_id", chainID, "network", desc.Name)
	logger.Info("starting deployment run", "contracts", len(contracts))

	plan, err := o.planner.Plan(ctx, contracts, chainID)
	if err != nil {
		metrics.Run(chainID, "aborted")
		logger.Error("planning failed, nothing deployed", "error", err)
		return nil, err
	}

	for _, step := range plan.Steps {
		entry := ReportEntry{Contract: step.ContractName, Action: step.Action}

		rec, err := o.deployer.Execute(ctx, step, chainID)
		entryFromRecord(&entry, rec)
		if err != nil {
			entry.Status = EntryFailed
			entry.Error = err.Error()
			metrics.DeployAction(chainID, string(step.Action), string(EntryFailed))
			logger.Error("deployment failed", "contract", step.ContractName, "error", err)
			logger.Info(separator)
			report.Entries = append(report.Entries, entry)
			continue
		}

		verified, verr := o.verifier.Verify(ctx, rec, step.Spec)
		entryFromRecord(&entry, verified)
		if verr != nil {
			entry.VerificationError = verr.Error()
		}
		entry.Status = EntryOK
		metrics.DeployAction(chainID, string(step.Action), string(EntryOK))

		logger.Info("contract ready",
			"contract", step.ContractName,
			"action", step.Action,
			"address", entry.Address,
			"verified", entry.Verified,
		)
		logger.Info(separator)
		report.Entries = append(report.Entries, entry)
	}

	report.FinishedAt = o.now()
	result := "ok"
	if report.HasFailures() {
		result = "partial"
	}
	metrics.Run(chainID, result)
	logger.Info("deployment run finished", "result", result, "duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// RunAll runs several chains concurrently, each chain strictly sequential. Reports
// are returned for every chain that got past planning; errors of the others are joined.
func (o *Orchestrator) RunAll(ctx context.Context, runs map[int64][]ContractSpec) (map[int64]*RunReport, error) {
	chainIDs := make([]int64, 0, len(runs))
	for id := range runs {
		chainIDs = append(chainIDs, id)
	}
	slices.Sort(chainIDs)

	var (
		mu      sync.Mutex
		reports = make(map[int64]*RunReport, len(runs))
		errs    []error
	)

	// Chain failures are collected in errs rather than returned to the group, so
	// one chain aborting never cancels the others and Wait has nothing to report.
	var g errgroup.Group
	for _, chainID := range chainIDs {
		g.Go(func() error {
			report, err := o.Run(ctx, chainID, runs[chainID])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("chain %d: %w", chainID, err))
				return nil
			}
			reports[chainID] = report
			return nil
		})
	}
	g.Wait()

	return reports, errors.Join(errs...)
}
