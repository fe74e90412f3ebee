package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
)

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var project string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a contraship.toml manifest",
		Long: `Create a contraship.toml manifest in the current directory.

The template declares a FundMe contract that takes the ETH/USD price feed and
a MockV3Aggregator stand-in for development networks. Edit the artifact paths
to match your build output.

EXAMPLES:
  contraship config init
  contraship config init --project fund-me --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(os.Stdout, project, force)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing manifest")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the effective configuration: environment settings with secrets
masked, then the project manifest.

EXAMPLES:
  contraship config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runConfigShow(os.Stdout, cfg)
		},
	}
}

const manifestTemplate = `# contraship project manifest

project = %q

# Default targets when --network is not given
networks = ["hardhat"]

# Directory the artifact metadata's source paths are relative to
root = "."

[[contract]]
name = "FundMe"
artifact = "artifacts/contracts/FundMe.sol/FundMe.json"
dependencies = ["ethUsdPriceFeed"]
args = ["$dep:ethUsdPriceFeed"]

# Deployed in place of ethUsdPriceFeed on development networks
[mocks.ethUsdPriceFeed]
contract = "MockV3Aggregator"
artifact = "artifacts/contracts/test/MockV3Aggregator.sol/MockV3Aggregator.json"
args = [8, "200000000000"]
`

func runConfigInit(w io.Writer, project string, force bool) error {
	path := manifestFiles[0]
	if cfgFile != "" {
		path = cfgFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("manifest already exists at %s (use --force to overwrite)", path)
	}

	if project == "" {
		if cwd, err := os.Getwd(); err == nil {
			project = filepath.Base(cwd)
		}
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf(manifestTemplate, project)), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", path)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Edit %s to point at your compiled artifacts\n", path)
	fmt.Fprintln(w, "  2. Run 'contraship plan --network hardhat' to check it")
	fmt.Fprintln(w, "  3. Set DEPLOYER_PRIVATE_KEY and ETHERSCAN_API_KEY before deploying to a testnet")

	return nil
}

func runConfigShow(w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "   STORAGE_TYPE=%s\n", cfg.Storage.Type)
	switch cfg.Storage.Type {
	case "sqlite":
		fmt.Fprintf(w, "   SQLITE_PATH=%s\n", cfg.Storage.SQLite.Path)
	case "postgres":
		fmt.Fprintf(w, "   DATABASE_URL=%s\n", maskSecret(cfg.Storage.Postgres.URL))
	}
	fmt.Fprintf(w, "   LOG_LEVEL=%s LOG_FORMAT=%s\n", cfg.Logging.Level, cfg.Logging.Format)
	fmt.Fprintf(w, "   METRICS_ENABLED=%t\n", cfg.Metrics.Enabled)
	fmt.Fprintf(w, "   DEPLOYER_PRIVATE_KEY=%s\n", maskSecret(cfg.Deploy.PrivateKey))
	fmt.Fprintf(w, "   DEPLOY_CONFIRMATION_TIMEOUT=%s DEPLOY_POLL_INTERVAL=%s\n", cfg.Deploy.ConfirmationTimeout, cfg.Deploy.PollInterval)
	fmt.Fprintf(w, "   DEPLOY_RECONCILE_CODE=%t\n", cfg.Deploy.ReconcileCode)
	fmt.Fprintf(w, "   ETHERSCAN_API_KEY=%s\n", maskSecret(cfg.Verification.APIKey))
	fmt.Fprintf(w, "   VERIFY_MAX_ATTEMPTS=%d\n", cfg.Verification.MaxAttempts)
	if cfg.Networks.File != "" {
		fmt.Fprintf(w, "   NETWORKS_FILE=%s\n", cfg.Networks.File)
	}
	ids := make([]int64, 0, len(cfg.Networks.RPCOverrides))
	for id := range cfg.Networks.RPCOverrides {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "   RPC_URL_%d=%s\n", id, cfg.Networks.RPCOverrides[id])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Manifest:")
	m, path, err := loadManifest()
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(w, "   (not found)")
	case err != nil:
		fmt.Fprintf(w, "   Error: %v\n", err)
	default:
		fmt.Fprintf(w, "   Loaded from: %s\n", path)
		if m.Project != "" {
			fmt.Fprintf(w, "   project: %s\n", m.Project)
		}
		if len(m.Networks) > 0 {
			fmt.Fprintf(w, "   networks: %s\n", strings.Join(m.Networks, ", "))
		}
		for _, c := range m.Contracts {
			fmt.Fprintf(w, "   contract %s: %s\n", c.Name, c.Artifact)
		}
		for _, dep := range slices.Sorted(maps.Keys(m.Mocks)) {
			fmt.Fprintf(w, "   mock %s: %s\n", dep, m.Mocks[dep].Contract)
		}
	}

	return nil
}

// maskSecret keeps enough of a secret to tell two apart
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:6] + "..." + s[len(s)-4:]
}
