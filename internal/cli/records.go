package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/storage"
	"github.com/pendergraft/contraship/pkg/client"
)

type recordsOptions struct {
	chainID      int64
	status       string
	verified     string
	includeMocks bool
	remote       bool
	output       string
}

func createRecordsCmd() *cobra.Command {
	var opts recordsOptions

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List deployment records",
		Long: `List the deployment records in the artifact store.

Records are read from the configured store, or from a running 'contraship serve'
with --remote. Mock records are hidden unless --include-mocks is given.

EXAMPLES:
  # All records
  contraship records

  # Unverified deployments on Sepolia
  contraship records --chain 11155111 --verified=false

  # Ask a read API instead of the local store
  contraship records --remote --server https://deployments.example.com
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(cmd.Context(), opts)
		},
	}

	cmd.Flags().Int64Var(&opts.chainID, "chain", 0, "filter by chain ID")
	cmd.Flags().StringVar(&opts.status, "status", "", "filter by status (pending, deployed, failed)")
	cmd.Flags().StringVar(&opts.verified, "verified", "", "filter by verification (true or false)")
	cmd.Flags().BoolVar(&opts.includeMocks, "include-mocks", false, "include development network mocks")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "query the read API at --server")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatAuto, "output format: auto, json, yaml or table")

	return cmd
}

// recordRow is one record as printed, whichever source it came from
type recordRow struct {
	Contract             string    `json:"contractName" yaml:"contract_name"`
	ChainID              int64     `json:"chainId" yaml:"chain_id"`
	Network              string    `json:"network,omitempty" yaml:"network,omitempty"`
	Address              string    `json:"address" yaml:"address"`
	Status               string    `json:"status" yaml:"status"`
	TxHash               string    `json:"txHash,omitempty" yaml:"tx_hash,omitempty"`
	Verified             bool      `json:"verified" yaml:"verified"`
	VerificationAttempts int       `json:"verificationAttempts" yaml:"verification_attempts"`
	UpdatedAt            time.Time `json:"updatedAt" yaml:"updated_at"`
}

func runRecords(ctx context.Context, opts recordsOptions) error {
	format, err := resolveFormat(opts.output, os.Stdout)
	if err != nil {
		return err
	}

	verified, err := parseOptionalBool(opts.verified)
	if err != nil {
		return fmt.Errorf("invalid --verified: %w", err)
	}

	var rows []recordRow
	if opts.remote {
		rows, err = remoteRecords(ctx, opts, verified)
	} else {
		rows, err = localRecords(ctx, opts, verified)
	}
	if err != nil {
		return err
	}

	if format != formatTable {
		if rows == nil {
			rows = []recordRow{}
		}
		return writeStructured(os.Stdout, format, rows)
	}
	return writeRecordsTable(os.Stdout, rows)
}

func localRecords(ctx context.Context, opts recordsOptions, verified *bool) ([]recordRow, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg)

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading networks: %w", err)
	}
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	deployments, err := domain.NewService(store, registry).List(ctx, domain.ListFilter{
		ChainID:      opts.chainID,
		Status:       storage.Status(opts.status),
		Verified:     verified,
		IncludeMocks: opts.includeMocks,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]recordRow, len(deployments))
	for i, d := range deployments {
		rows[i] = recordRow{
			Contract:             d.ContractName,
			ChainID:              d.ChainID,
			Network:              d.Network,
			Address:              d.Address,
			Status:               string(d.Status),
			TxHash:               d.TxHash,
			Verified:             d.Verified,
			VerificationAttempts: d.VerificationAttempts,
			UpdatedAt:            d.UpdatedAt,
		}
	}
	return rows, nil
}

func remoteRecords(ctx context.Context, opts recordsOptions, verified *bool) ([]recordRow, error) {
	c := client.New(getServer())
	deployments, err := c.ListDeployments(ctx, client.ListOptions{
		ChainID:      opts.chainID,
		Status:       opts.status,
		Verified:     verified,
		IncludeMocks: opts.includeMocks,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	rows := make([]recordRow, len(deployments))
	for i, d := range deployments {
		rows[i] = recordRow{
			Contract:             d.ContractName,
			ChainID:              d.ChainID,
			Network:              d.Network,
			Address:              d.Address,
			Status:               d.Status,
			TxHash:               d.TxHash,
			Verified:             d.Verified,
			VerificationAttempts: d.VerificationAttempts,
			UpdatedAt:            d.UpdatedAt,
		}
	}
	return rows, nil
}

func writeRecordsTable(w io.Writer, rows []recordRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No deployments found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tCONTRACT\tADDRESS\tSTATUS\tVERIFIED\tUPDATED")
	for _, r := range rows {
		network := r.Network
		if network == "" {
			network = strconv.FormatInt(r.ChainID, 10)
		}
		verified := yesNo(r.Verified)
		if !r.Verified && r.VerificationAttempts > 0 {
			verified = fmt.Sprintf("no (%d attempts)", r.VerificationAttempts)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			network, r.Contract, r.Address, r.Status, verified, r.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

// parseOptionalBool returns nil for an empty flag value
func parseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
