package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/deployments/domain"
)

func createPlanCmd() *cobra.Command {
	var networkFlags []string
	var output string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a deploy would do",
		Long: `Resolve dependencies and decide, per contract, whether a deploy would
deploy it, skip it or deploy its mocks first. Nothing on production networks
is sent; on development networks missing mocks are deployed so their
addresses can be resolved.

EXAMPLES:
  contraship plan --network rinkeby
  contraship plan --network hardhat --output yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), networkFlags, output)
		},
	}

	cmd.Flags().StringSliceVarP(&networkFlags, "network", "n", nil, "target network name or chain ID (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", formatAuto, "output format: auto, json, yaml or table")

	return cmd
}

// planStepOutput is one plan step as printed
type planStepOutput struct {
	Network         string   `json:"network" yaml:"network"`
	ChainID         int64    `json:"chainId" yaml:"chain_id"`
	Contract        string   `json:"contract" yaml:"contract"`
	Action          string   `json:"action" yaml:"action"`
	Args            []any    `json:"args" yaml:"args"`
	ExistingAddress string   `json:"existingAddress,omitempty" yaml:"existing_address,omitempty"`
	MocksDeployed   []string `json:"mocksDeployed,omitempty" yaml:"mocks_deployed,omitempty"`
}

func runPlan(ctx context.Context, networkFlags []string, output string) error {
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

	var steps []planStepOutput
	for _, id := range chainIDs {
		plan, err := rt.planner.Plan(ctx, specs, id)
		if err != nil {
			return fmt.Errorf("chain %d: %w", id, err)
		}
		steps = append(steps, planSteps(plan)...)
	}

	if format != formatTable {
		return writeStructured(os.Stdout, format, steps)
	}
	return writePlanTable(os.Stdout, steps)
}

func planSteps(plan *domain.Plan) []planStepOutput {
	out := make([]planStepOutput, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		o := planStepOutput{
			Network:       plan.Network,
			ChainID:       plan.ChainID,
			Contract:      s.ContractName,
			Action:        string(s.Action),
			Args:          s.ResolvedArgs,
			MocksDeployed: s.MocksDeployed,
		}
		if o.Args == nil {
			o.Args = []any{}
		}
		if s.Existing != nil {
			o.ExistingAddress = s.Existing.Address
		}
		out = append(out, o)
	}
	return out
}

func writePlanTable(w io.Writer, steps []planStepOutput) error {
	if len(steps) == 0 {
		fmt.Fprintln(w, "Nothing to do")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tCONTRACT\tACTION\tARGS\tEXISTING")
	for _, s := range steps {
		existing := s.ExistingAddress
		if existing == "" {
			existing = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", s.Network, s.Contract, s.Action, s.Args, existing)
	}
	return tw.Flush()
}
