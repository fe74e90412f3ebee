package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/deployments/domain"
)

var errRunFailures = errors.New("one or more contracts failed to deploy")

func createDeployCmd() *cobra.Command {
	var networkFlags []string
	var output string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the manifest's contracts",
		Long: `Deploy every contract in the manifest to the selected networks.

Networks run concurrently; contracts on one network deploy in manifest order.
A contract whose record already matches its constructor arguments is skipped,
so re-running a deploy is safe. On development networks missing dependencies
are satisfied by deploying the manifest's mocks first.

Exits non-zero when any contract failed to deploy. Verification failures are
reported but do not fail the run; the next run retries them.

EXAMPLES:
  # Deploy to the local Hardhat node
  contraship deploy --network hardhat

  # Deploy to two testnets, by name or chain ID
  contraship deploy --network rinkeby --network 11155111

  # Machine readable report
  contraship deploy --network sepolia --output json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDeploy(ctx, networkFlags, output)
		},
	}

	cmd.Flags().StringSliceVarP(&networkFlags, "network", "n", nil, "target network name or chain ID (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", formatAuto, "report format: auto, json, yaml or table")

	return cmd
}

func runDeploy(ctx context.Context, networkFlags []string, output string) error {
	format, err := resolveFormat(output, os.Stdout)
	if err != nil {
		return err
	}

	manifest, specs, mocks, err := loadProject()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rt, err := newRuntime(ctx, cfg, mocks)
	if err != nil {
		return err
	}
	defer rt.Close()

	chainIDs, err := selectNetworks(rt.registry, targetNetworks(networkFlags, manifest))
	if err != nil {
		return err
	}

	runs := make(map[int64][]domain.ContractSpec, len(chainIDs))
	for _, id := range chainIDs {
		runs[id] = specs
	}

	reports, runErr := rt.orchestrator.RunAll(ctx, runs)

	ordered := make([]*domain.RunReport, 0, len(reports))
	for _, id := range chainIDs {
		if r, ok := reports[id]; ok {
			ordered = append(ordered, r)
		}
	}
	if err := writeReports(os.Stdout, format, ordered); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	for _, r := range ordered {
		if r.HasFailures() {
			return errRunFailures
		}
	}
	return nil
}

// loadProject reads the manifest and the artifacts it names
func loadProject() (*Manifest, []domain.ContractSpec, map[string]domain.MockSpec, error) {
	manifest, path, err := loadManifest()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == "" {
			return nil, nil, nil, errors.New("no contraship.toml found (run 'contraship config init' or pass --config)")
		}
		return nil, nil, nil, fmt.Errorf("loading manifest: %w", err)
	}

	specs, err := manifest.ContractSpecs()
	if err != nil {
		return nil, nil, nil, err
	}
	mocks, err := manifest.MockSpecs()
	if err != nil {
		return nil, nil, nil, err
	}
	return manifest, specs, mocks, nil
}
