package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/policy/builtin"
	"github.com/ppiankov/justact/internal/sim"
)

var (
	simTrace     string
	simAgreement string
	simLanguage  string
	simFormat    string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simTrace, "trace", "", "Path to a recorded trace (required)")
	simulateCmd.Flags().StringVar(&simAgreement, "agreement", "", "Path to the candidate agreement text (required)")
	simulateCmd.Flags().StringVar(&simLanguage, "language", "", "Language of the candidate agreement (default: that of the cited statements)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	simulateCmd.MarkFlagRequired("trace")
	simulateCmd.MarkFlagRequired("agreement")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Re-audit a recorded run under a candidate agreement and show verdict diffs",
	Long: "Reads a recorded trace, audits each judged action again with the same\n" +
		"justification but a different agreement text, and shows which verdicts changed.\n\n" +
		"Use this to preview an amendment before the synchronizer publishes it.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	reg, err := builtin.Registry(cfg.Backends())
	if err != nil {
		return err
	}
	result, err := sim.Simulate(simTrace, simAgreement, reg, sim.Options{
		Language:     simLanguage,
		Requirements: cfg.Requirements,
	})
	if err != nil {
		return err
	}

	switch simFormat {
	case "json":
		out, err := sim.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), sim.FormatText(result))
	}
	return nil
}
