package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pendergraft/contraship/internal/explorer"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/storage"
)

// VerificationClient submits source verification to a block explorer. *explorer.Client implements it.
type VerificationClient interface {
	Submit(ctx context.Context, req explorer.Request) (explorer.Result, error)
}

// VerifierConfig controls verification retries
type VerifierConfig struct {
	// Enabled is false when no explorer credential is configured
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var (
	errRateLimited = errors.New("explorer rate limit reached")
	errNotIndexed  = errors.New("explorer has not indexed the contract yet")
)

// Verifier publishes deployed contracts' source to the network's explorer
type Verifier struct {
	registry *networks.Registry
	store    storage.RecordStore
	client   VerificationClient
	cfg      VerifierConfig
	logger   *slog.Logger
}

// NewVerifier creates a verifier. client may be nil when verification is disabled.
func NewVerifier(registry *networks.Registry, store storage.RecordStore, client VerificationClient, cfg VerifierConfig, logger *slog.Logger) *Verifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Verifier{
		registry: registry,
		store:    store,
		client:   client,
		cfg:      cfg,
		logger:   logger,
	}
}

// Verify submits rec for verification unless the network is a development network,
// verification is disabled or the record is already verified. Rate limits and
// transport errors are retried with exponential backoff; every submission is counted
// on the record. When verification does not succeed the latest record is returned
// together with an error wrapping ErrVerificationFailed.
func (v *Verifier) Verify(ctx context.Context, rec *storage.DeploymentRecord, spec ContractSpec) (*storage.DeploymentRecord, error) {
	if rec == nil || rec.Status != storage.StatusDeployed || rec.Verified {
		return rec, nil
	}
	if v.registry.IsDevelopmentNetwork(rec.ChainID) {
		return rec, nil
	}
	if !v.cfg.Enabled || v.client == nil {
		v.logger.Debug("verification disabled, skipping", "contract", rec.ContractName, "chain_id", rec.ChainID)
		return rec, nil
	}

	logger := v.logger.With("contract", rec.ContractName, "chain_id", rec.ChainID, "address", rec.Address)

	req, err := v.buildRequest(rec, spec)
	if err != nil {
		return rec, fmt.Errorf("%w: %s: %w", ErrVerificationFailed, rec.ContractName, err)
	}

	logger.Info("verifying contract")

	current := rec
	op := func() error {
		res, submitErr := v.client.Submit(ctx, req)

		outcome := string(res.Status)
		if submitErr != nil {
			outcome = "error"
		}
		metrics.VerificationAttempt(rec.ChainID, outcome)

		verified := submitErr == nil && (res.Status == explorer.StatusVerified || res.Status == explorer.StatusAlreadyVerified)
		updated, err := v.store.Modify(ctx, rec.ContractName, rec.ChainID, func(cur *storage.DeploymentRecord) (*storage.DeploymentRecord, error) {
			if cur == nil {
				return nil, nil
			}
			cur.VerificationAttempts++
			if verified {
				cur.Verified = true
			}
			return cur, nil
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("recording verification attempt: %w", err))
		}
		if updated != nil {
			current = updated
		}

		switch {
		case submitErr != nil:
			if errors.Is(submitErr, explorer.ErrInvalidRequest) {
				return backoff.Permanent(submitErr)
			}
			logger.Warn("verification attempt failed", "attempt", current.VerificationAttempts, "error", submitErr)
			return submitErr
		case verified:
			return nil
		case res.Status == explorer.StatusRateLimited:
			logger.Warn("explorer rate limited, backing off", "attempt", current.VerificationAttempts)
			return errRateLimited
		case res.Status == explorer.StatusNotIndexed:
			logger.Warn("explorer has not indexed the contract yet, backing off", "attempt", current.VerificationAttempts)
			return errNotIndexed
		}
		return backoff.Permanent(fmt.Errorf("explorer rejected source: %s", res.Message))
	}

	if err := backoff.Retry(op, v.backoff(ctx)); err != nil {
		logger.Warn("verification failed", "attempts", current.VerificationAttempts, "error", err)
		return current, fmt.Errorf("%w: %s on chain %d: %w", ErrVerificationFailed, rec.ContractName, rec.ChainID, err)
	}

	logger.Info("contract verified", "attempts", current.VerificationAttempts)
	return current, nil
}

func (v *Verifier) buildRequest(rec *storage.DeploymentRecord, spec ContractSpec) (explorer.Request, error) {
	desc, err := v.registry.Describe(rec.ChainID)
	if err != nil {
		return explorer.Request{}, err
	}
	if desc.ExplorerAPIURL == "" {
		return explorer.Request{}, fmt.Errorf("network %s has no explorer API URL", desc.Name)
	}
	if spec.Artifact == nil {
		return explorer.Request{}, errors.New("no artifact")
	}

	source, err := spec.Artifact.StandardJSONInput(spec.SourceRoot)
	if err != nil {
		return explorer.Request{}, err
	}
	packed, err := spec.Artifact.PackConstructorArgs(rec.ConstructorArgs)
	if err != nil {
		return explorer.Request{}, err
	}

	return explorer.Request{
		APIURL:          desc.ExplorerAPIURL,
		ChainID:         rec.ChainID,
		Address:         rec.Address,
		ContractName:    spec.Artifact.QualifiedName(),
		CompilerVersion: spec.Artifact.Compiler.Version,
		SourceCode:      source,
		ConstructorArgs: packed,
	}, nil
}

func (v *Verifier) backoff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = v.cfg.InitialDelay
	expo.MaxInterval = v.cfg.MaxDelay
	expo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(v.cfg.MaxAttempts-1)), ctx)
}
