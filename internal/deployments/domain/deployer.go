package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/storage"
)

// DeployerConfig bounds the network calls of a deployment
type DeployerConfig struct {
	SubmitTimeout       time.Duration
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// Deployer executes plan steps. It deploys exactly the resolved arguments of a step
// and never resolves dependencies itself.
type Deployer struct {
	registry *networks.Registry
	store    storage.RecordStore
	nodes    NodeProvider
	cfg      DeployerConfig
	logger   *slog.Logger
}

// NewDeployer creates a deployer
func NewDeployer(registry *networks.Registry, store storage.RecordStore, nodes NodeProvider, cfg DeployerConfig, logger *slog.Logger) *Deployer {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = time.Minute
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Deployer{
		registry: registry,
		store:    store,
		nodes:    nodes,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute carries out one plan step and returns the resulting record. On a
// confirmation failure the returned error wraps ErrDeploymentRejected and the
// record, if one was written, is returned alongside it.
func (d *Deployer) Execute(ctx context.Context, step PlanStep, chainID int64) (*storage.DeploymentRecord, error) {
	if step.Action == ActionSkip {
		if step.Existing == nil {
			return nil, fmt.Errorf("skip step for %s has no existing record", step.ContractName)
		}
		return step.Existing.Clone(), nil
	}

	desc, err := d.registry.Describe(chainID)
	if err != nil {
		return nil, err
	}
	if step.Spec.Artifact == nil {
		return nil, fmt.Errorf("%w: %s has no artifact", ErrDeploymentRejected, step.ContractName)
	}
	node, err := d.nodes.Node(ctx, chainID)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With("contract", step.ContractName, "chain_id", chainID, "network", desc.Name)

	rec, resumed := d.resumable(step)
	if resumed {
		logger.Info("resuming wait for pending deployment", "tx_hash", rec.TxHash)
	} else {
		rec, err = d.submit(ctx, node, step, chainID)
		if err != nil {
			return nil, err
		}
		logger.Info("deploying", "address", rec.Address, "tx_hash", rec.TxHash, "args", step.ResolvedArgs)
	}

	required := max(desc.ConfirmationsRequired, 1)
	start := time.Now()

	conf, err := d.waitForConfirmations(ctx, node, rec.TxHash, required)
	if errors.Is(err, ErrConfirmationTimeout) {
		logger.Warn("confirmation wait timed out, waiting once more",
			"tx_hash", rec.TxHash,
			"timeout", d.cfg.ConfirmationTimeout,
		)
		conf, err = d.waitForConfirmations(ctx, node, rec.TxHash, required)
	}

	switch {
	case errors.Is(err, ErrConfirmationTimeout):
		// The record stays pending and is reconciled on the next run
		return rec, fmt.Errorf("%w: %s: %w", ErrDeploymentRejected, step.ContractName, err)
	case errors.Is(err, chains.ErrTxReverted), errors.Is(err, chains.ErrTxDropped):
		failed, ferr := d.markFailed(ctx, rec)
		if ferr != nil {
			logger.Error("failed to mark deployment failed", "error", ferr)
			failed = rec
		}
		return failed, fmt.Errorf("%w: %s: %w", ErrDeploymentRejected, step.ContractName, err)
	case err != nil:
		return rec, fmt.Errorf("waiting for %s: %w", step.ContractName, err)
	}

	metrics.ConfirmationWait(chainID, time.Since(start))

	deployed, err := d.store.Modify(ctx, rec.ContractName, chainID, func(cur *storage.DeploymentRecord) (*storage.DeploymentRecord, error) {
		if cur == nil {
			cur = rec.Clone()
		}
		cur.Address = rec.Address
		cur.TxHash = rec.TxHash
		cur.ConstructorArgs = rec.ConstructorArgs
		cur.Status = storage.StatusDeployed
		cur.BlockNumber = int64(conf.BlockNumber)
		cur.Verified = false
		cur.VerificationAttempts = 0
		return cur, nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording deployment of %s: %w", step.ContractName, err)
	}

	logger.Info("deployed",
		"address", deployed.Address,
		"block", deployed.BlockNumber,
		"confirmations", conf.Count,
	)
	return deployed, nil
}

// resumable returns the existing pending record when its transaction carries the
// same arguments as the step, so the deployer waits on it instead of sending another.
func (d *Deployer) resumable(step PlanStep) (*storage.DeploymentRecord, bool) {
	ex := step.Existing
	if ex == nil || ex.Status != storage.StatusPending || ex.TxHash == "" {
		return nil, false
	}
	if !storage.ArgsEqual(ex.ConstructorArgs, step.ResolvedArgs) {
		return nil, false
	}
	return ex.Clone(), true
}

func (d *Deployer) submit(ctx context.Context, node chains.Node, step PlanStep, chainID int64) (*storage.DeploymentRecord, error) {
	submitCtx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	sub, err := node.SubmitDeployment(submitCtx, step.Spec.Artifact, step.ResolvedArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: submitting %s: %w", ErrDeploymentRejected, step.ContractName, err)
	}

	rec, err := d.store.UpsertRecord(ctx, &storage.DeploymentRecord{
		ContractName:    step.ContractName,
		ChainID:         chainID,
		Address:         sub.Address,
		ConstructorArgs: step.ResolvedArgs,
		TxHash:          sub.TxHash,
		Status:          storage.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("recording pending deployment of %s: %w", step.ContractName, err)
	}
	return rec, nil
}

// waitForConfirmations polls until the transaction has required confirmations or the
// confirmation window closes. Transient node errors are logged and polled through.
// A transaction the node does not know yet counts as pending until the window
// closes; only then is it reported dropped.
func (d *Deployer) waitForConfirmations(ctx context.Context, node chains.Node, txHash string, required uint64) (*chains.Confirmation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	var dropped error
	for {
		conf, err := node.Confirmations(waitCtx, txHash)
		switch {
		case errors.Is(err, chains.ErrTxReverted):
			return nil, err
		case errors.Is(err, chains.ErrTxDropped):
			dropped = err
			d.logger.Debug("transaction not visible yet", "tx_hash", txHash)
		case err != nil:
			if waitCtx.Err() == nil {
				d.logger.Debug("confirmation check failed", "tx_hash", txHash, "error", err)
			}
		case conf.Count >= required:
			return conf, nil
		default:
			dropped = nil
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if dropped != nil {
				return nil, dropped
			}
			return nil, fmt.Errorf("%w after %s waiting for %d confirmations of %s",
				ErrConfirmationTimeout, d.cfg.ConfirmationTimeout, required, txHash)
		case <-ticker.C:
		}
	}
}

func (d *Deployer) markFailed(ctx context.Context, rec *storage.DeploymentRecord) (*storage.DeploymentRecord, error) {
	return d.store.Modify(ctx, rec.ContractName, rec.ChainID, func(cur *storage.DeploymentRecord) (*storage.DeploymentRecord, error) {
		if cur == nil {
			cur = rec.Clone()
		}
		if cur.TxHash != rec.TxHash {
			return nil, nil
		}
		cur.Status = storage.StatusFailed
		return cur, nil
	})
}
