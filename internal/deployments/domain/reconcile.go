package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/storage"
)

// reconciler brings a stored record in line with the chain before it is trusted.
// A record left pending by an interrupted run is promoted once its transaction is
// mined or marked failed once the node reports it reverted or dropped.
type reconciler struct {
	store     storage.RecordStore
	nodes     NodeProvider
	checkCode bool
	logger    *slog.Logger
}

// reconcile returns the up to date record and whether it can be reused as deployed.
// A nil record is passed through.
func (r *reconciler) reconcile(ctx context.Context, rec *storage.DeploymentRecord) (*storage.DeploymentRecord, bool, error) {
	if rec == nil {
		return nil, false, nil
	}

	switch rec.Status {
	case storage.StatusFailed:
		return rec, false, nil

	case storage.StatusPending:
		return r.reconcilePending(ctx, rec)

	case storage.StatusDeployed:
		if !r.checkCode {
			return rec, true, nil
		}
		node, err := r.nodes.Node(ctx, rec.ChainID)
		if err != nil {
			return nil, false, err
		}
		code, err := node.CodeAt(ctx, rec.Address)
		if err != nil {
			return nil, false, fmt.Errorf("checking code of %s at %s: %w", rec.ContractName, rec.Address, err)
		}
		if len(code) == 0 {
			r.logger.Warn("recorded deployment has no code, redeploying",
				"contract", rec.ContractName,
				"chain_id", rec.ChainID,
				"address", rec.Address,
			)
			return rec, false, nil
		}
		return rec, true, nil
	}

	return rec, false, nil
}

func (r *reconciler) reconcilePending(ctx context.Context, rec *storage.DeploymentRecord) (*storage.DeploymentRecord, bool, error) {
	if rec.TxHash == "" {
		return r.markFailed(ctx, rec)
	}

	node, err := r.nodes.Node(ctx, rec.ChainID)
	if err != nil {
		return nil, false, err
	}

	conf, err := node.Confirmations(ctx, rec.TxHash)
	switch {
	case errors.Is(err, chains.ErrTxReverted), errors.Is(err, chains.ErrTxDropped):
		r.logger.Warn("pending deployment did not land",
			"contract", rec.ContractName,
			"chain_id", rec.ChainID,
			"tx_hash", rec.TxHash,
			"error", err,
		)
		return r.markFailed(ctx, rec)
	case err != nil:
		return nil, false, fmt.Errorf("checking pending deployment of %s: %w", rec.ContractName, err)
	case conf.Count == 0:
		// Still in the mempool; the deployer resumes waiting on it
		return rec, false, nil
	}

	promoted, err := r.store.Modify(ctx, rec.ContractName, rec.ChainID, func(cur *storage.DeploymentRecord) (*storage.DeploymentRecord, error) {
		if cur == nil || cur.Status != storage.StatusPending || cur.TxHash != rec.TxHash {
			return nil, nil
		}
		cur.Status = storage.StatusDeployed
		cur.BlockNumber = int64(conf.BlockNumber)
		cur.Verified = false
		cur.VerificationAttempts = 0
		return cur, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("promoting pending deployment of %s: %w", rec.ContractName, err)
	}
	if promoted == nil || promoted.Status != storage.StatusDeployed {
		return promoted, false, nil
	}

	r.logger.Info("promoted pending deployment",
		"contract", rec.ContractName,
		"chain_id", rec.ChainID,
		"address", promoted.Address,
		"block", promoted.BlockNumber,
	)
	return promoted, true, nil
}

func (r *reconciler) markFailed(ctx context.Context, rec *storage.DeploymentRecord) (*storage.DeploymentRecord, bool, error) {
	failed, err := r.store.Modify(ctx, rec.ContractName, rec.ChainID, func(cur *storage.DeploymentRecord) (*storage.DeploymentRecord, error) {
		if cur == nil || cur.Status != storage.StatusPending {
			return nil, nil
		}
		cur.Status = storage.StatusFailed
		return cur, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("marking %s failed: %w", rec.ContractName, err)
	}
	if failed == nil {
		failed = rec
	}
	return failed, false, nil
}
