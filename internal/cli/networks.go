package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/networks"
)

func createNetworksCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List target networks",
		Long: `List the networks deployments can target: the built-in set, or the
registry loaded from --networks / NETWORKS_FILE, with RPC_URL_<CHAINID>
overrides applied.

EXAMPLES:
  contraship networks
  contraship networks --networks networks.yaml --output json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(output, os.Stdout)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return fmt.Errorf("loading networks: %w", err)
			}

			list := registry.List()
			if format != formatTable {
				return writeStructured(os.Stdout, format, list)
			}
			return writeNetworksTable(os.Stdout, list)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatAuto, "output format: auto, json, yaml or table")

	return cmd
}

func writeNetworksTable(w io.Writer, list []networks.NetworkDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN ID\tNAME\tTYPE\tCONFIRMATIONS\tRPC\tKNOWN ADDRESSES")
	for _, d := range list {
		kind := "production"
		if d.IsDevelopment {
			kind = "development"
		}
		rpc := d.RPCURL
		if rpc == "" {
			rpc = "(not set)"
		}
		known := "-"
		if len(d.KnownAddresses) > 0 {
			deps := make([]string, 0, len(d.KnownAddresses))
			for dep := range d.KnownAddresses {
				deps = append(deps, dep)
			}
			slices.Sort(deps)
			known = strings.Join(deps, ",")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", d.ChainID, d.Name, kind, d.ConfirmationsRequired, rpc, known)
	}
	return tw.Flush()
}
