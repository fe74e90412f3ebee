package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/contraship/internal/deployments/domain"
)

const (
	formatAuto  = "auto"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

// resolveFormat validates --output and picks table for terminals and JSON otherwise
// when it is "auto"
func resolveFormat(format string, out *os.File) (string, error) {
	switch strings.ToLower(format) {
	case "", formatAuto:
		if term.IsTerminal(int(out.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	case formatTable:
		return formatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use auto, json, yaml or table)", format)
	}
}

// writeStructured writes v as indented JSON or YAML
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// reportOutput is a run report with its per-contract summary
type reportOutput struct {
	domain.RunReport `yaml:",inline"`
	Summary          map[string]domain.SummaryEntry `json:"summary" yaml:"summary"`
}

// writeReports renders run reports, ordered as given
func writeReports(w io.Writer, format string, reports []*domain.RunReport) error {
	if format != formatTable {
		out := make([]reportOutput, len(reports))
		for i, r := range reports {
			out[i] = reportOutput{RunReport: *r, Summary: r.Summary()}
		}
		return writeStructured(w, format, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tCONTRACT\tACTION\tADDRESS\tVERIFIED\tSTATUS")
	var problems []string
	for _, r := range reports {
		for _, e := range r.Entries {
			address := e.Address
			if address == "" {
				address = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Network, e.Contract, e.Action, address, yesNo(e.Verified), e.Status)
			if e.Error != "" {
				problems = append(problems, fmt.Sprintf("%s/%s: %s", r.Network, e.Contract, e.Error))
			}
			if e.VerificationError != "" {
				problems = append(problems, fmt.Sprintf("%s/%s: verification: %s", r.Network, e.Contract, e.VerificationError))
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(problems) > 0 {
		fmt.Fprintln(w)
		for _, p := range problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
