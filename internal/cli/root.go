// Package cli implements the contraship command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	networksFile string
	server       string
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:   "contraship",
		Short: "Multi-network smart contract deployment",
		Long: `Contraship deploys a project's contracts to one or more networks, resolving
price feed style dependencies to mocks on development networks and to known
addresses elsewhere, and verifies the deployed source on block explorers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project manifest (default: contraship.toml)")
	rootCmd.PersistentFlags().StringVar(&networksFile, "networks", "", "network registry file, TOML or YAML (default: built-in networks)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "read API URL for --remote queries")

	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createPlanCmd())
	rootCmd.AddCommand(createRecordsCmd())
	rootCmd.AddCommand(createNetworksCmd())
	rootCmd.AddCommand(createServeCmd(version))
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd.Execute()
}

// getServer returns the read API URL from flag, env, manifest or the default
func getServer() string {
	if server != "" {
		return server
	}

	if env := os.Getenv("CONTRASHIP_SERVER"); env != "" {
		return env
	}

	if m := loadManifestSilent(); m != nil && m.Server != "" {
		return m.Server
	}

	return "http://localhost:8080"
}
