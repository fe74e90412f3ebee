//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/chains/evm"
	"github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
)

// The simulated backend runs chain 1337, registered as the "localhost" development network
const simulatedChainID = 1337

// Creation code that returns a one byte runtime
const tinyInitCode = "0x6001600c60003960016000f300"

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("contraship"),
		postgres.WithUsername("contraship"),
		postgres.WithPassword("contraship"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	return container, connString, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// openStore opens a migrated Postgres store with an empty deployments table
func openStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewPostgresStore(testCtx.ConnString, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	conn, err := pgx.Connect(ctx, testCtx.ConnString)
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "TRUNCATE deployment_records")
	require.NoError(t, err)
	return store
}

// startChain starts a simulated chain that mines a block every few milliseconds
func startChain(t *testing.T) *evm.Node {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	balance, _ := new(big.Int).SetString("100000000000000000000", 10)
	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: balance},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		backend.Close()
	})

	return evm.NewNode(backend.Client(), key, evm.Options{}, testLogger())
}

// engine is the deployment engine wired over a store and one simulated chain
type engine struct {
	registry     *networks.Registry
	orchestrator *domain.Orchestrator
}

func newEngine(store storage.Store, node chains.Node) *engine {
	logger := testLogger()
	registry := networks.Defaults()

	pool := chains.NewPool(nil)
	pool.Register(simulatedChainID, node)

	mocks := map[string]domain.MockSpec{
		"ethUsdPriceFeed": {
			ContractName:    "MockV3Aggregator",
			Artifact:        artifact("MockV3Aggregator", `[{"type":"constructor","inputs":[{"name":"decimals","type":"uint8"},{"name":"initialAnswer","type":"int256"}]}]`),
			ConstructorArgs: []any{8, "200000000000"},
		},
	}

	deployer := domain.NewDeployer(registry, store, pool, domain.DeployerConfig{
		SubmitTimeout:       10 * time.Second,
		ConfirmationTimeout: 10 * time.Second,
		PollInterval:        10 * time.Millisecond,
	}, logger)
	resolver := domain.NewResolver(registry, store, deployer, pool, mocks, true, logger)
	planner := domain.NewPlanner(registry, store, resolver, pool, true, logger)
	verifier := domain.NewVerifier(registry, store, nil, domain.VerifierConfig{}, logger)

	return &engine{
		registry:     registry,
		orchestrator: domain.NewOrchestrator(registry, planner, deployer, verifier, logger),
	}
}

func artifact(name, abiJSON string) *chains.Artifact {
	return &chains.Artifact{
		Name:     name,
		ABI:      json.RawMessage(abiJSON),
		Bytecode: tinyInitCode,
	}
}

func fundMeSpec() domain.ContractSpec {
	return domain.ContractSpec{
		Name:         "FundMe",
		Artifact:     artifact("FundMe", `[{"type":"constructor","inputs":[{"name":"priceFeed","type":"address"}]}]`),
		Dependencies: []string{"ethUsdPriceFeed"},
	}
}
