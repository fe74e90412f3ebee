package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/chains/evm"
	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/explorer"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/storage"
)

// runtime holds the wired engine for one command invocation
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *networks.Registry
	store    storage.Store
	pool     *chains.Pool

	planner      *domain.Planner
	orchestrator *domain.Orchestrator
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	// stdout carries reports
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadRegistry returns the --networks file, NETWORKS_FILE or the built-in networks,
// with RPC_URL_<CHAINID> overrides applied
func loadRegistry(cfg *config.Config) (*networks.Registry, error) {
	path := networksFile
	if path == "" {
		path = cfg.Networks.File
	}
	registry, err := networks.Load(path)
	if err != nil {
		return nil, err
	}
	return registry.WithRPCOverrides(cfg.Networks.RPCOverrides), nil
}

// openStore opens and migrates the configured artifact store
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// nodeDialer opens an EVM node on the descriptor's RPC URL, signing with the configured key
func nodeDialer(cfg *config.Config, registry *networks.Registry, logger *slog.Logger) chains.Dialer {
	return func(ctx context.Context, chainID int64) (chains.Node, error) {
		d, err := registry.Describe(chainID)
		if err != nil {
			return nil, err
		}
		if d.RPCURL == "" {
			return nil, fmt.Errorf("no RPC URL for %s (%d): set RPC_URL_%d", d.Name, chainID, chainID)
		}
		key, err := evm.ParsePrivateKey(cfg.Deploy.PrivateKey)
		if err != nil {
			return nil, err
		}
		node, err := evm.Dial(ctx, d.RPCURL, key, evm.Options{GasLimit: cfg.Deploy.GasLimit}, logger.With("chain_id", chainID))
		if err != nil {
			return nil, err
		}
		return node, nil
	}
}

func newRuntime(ctx context.Context, cfg *config.Config, mocks map[string]domain.MockSpec) (*runtime, error) {
	logger := setupLogger(cfg)
	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading networks: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pool := chains.NewPool(nodeDialer(cfg, registry, logger))

	deployer := domain.NewDeployer(registry, store, pool, domain.DeployerConfig{
		SubmitTimeout:       cfg.Deploy.SubmitTimeout,
		ConfirmationTimeout: cfg.Deploy.ConfirmationTimeout,
		PollInterval:        cfg.Deploy.PollInterval,
	}, logger)
	resolver := domain.NewResolver(registry, store, deployer, pool, mocks, cfg.Deploy.ReconcileCode, logger)
	planner := domain.NewPlanner(registry, store, resolver, pool, cfg.Deploy.ReconcileCode, logger)

	var client domain.VerificationClient
	if cfg.HasVerificationCredential() {
		client = explorer.New(cfg.Verification.APIKey, logger, explorer.WithRateLimit(cfg.Verification.RequestsPerS))
	} else {
		logger.Info("no explorer API key configured, verification disabled")
	}
	verifier := domain.NewVerifier(registry, store, client, domain.VerifierConfig{
		Enabled:      cfg.HasVerificationCredential(),
		MaxAttempts:  cfg.Verification.MaxAttempts,
		InitialDelay: cfg.Verification.InitialDelay,
		MaxDelay:     cfg.Verification.MaxDelay,
	}, logger)

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		store:        store,
		pool:         pool,
		planner:      planner,
		orchestrator: domain.NewOrchestrator(registry, planner, deployer, verifier, logger),
	}, nil
}

func (r *runtime) Close() error {
	poolErr := r.pool.Close()
	if err := r.store.Close(); err != nil {
		return err
	}
	return poolErr
}

// selectNetworks turns network names or chain IDs into registered chain IDs,
// dropping duplicates and keeping order
func selectNetworks(registry *networks.Registry, values []string) ([]int64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no target network: pass --network or set networks in the manifest")
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, v := range values {
		var chainID int64
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			if _, err := registry.Describe(id); err != nil {
				return nil, err
			}
			chainID = id
		} else {
			d, ok := registry.Lookup(v)
			if !ok {
				return nil, fmt.Errorf("%w: %q", networks.ErrUnknownNetwork, v)
			}
			chainID = d.ChainID
		}
		if !seen[chainID] {
			seen[chainID] = true
			ids = append(ids, chainID)
		}
	}
	return ids, nil
}

// targetNetworks prefers --network values over the manifest defaults
func targetNetworks(flagValues []string, m *Manifest) []string {
	if len(flagValues) > 0 {
		return flagValues
	}
	return m.Networks
}
