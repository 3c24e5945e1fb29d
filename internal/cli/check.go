package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/scenario"
)

var (
	checkScenario string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run scenario files and check their expectations",
	Long: "Loads scenario YAML files matching a glob pattern, runs each one to\n" +
		"completion and compares verdicts, dataplane and actor states with the\n" +
		"file's expect block.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(cmd.Context(), path, scenarioOptions(nil))
		if err != nil {
			return err
		}
		results = append(results, r)
	}
	return printResults(cmd, results, checkFormat)
}

// printResults renders results and reports errChecksFailed when any
// expectation failed.
func printResults(cmd *cobra.Command, results []*scenario.RunResult, format string) error {
	switch format {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	case "text":
		fmt.Fprint(cmd.OutOrStdout(), scenario.FormatText(results))
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	for _, r := range results {
		if r.Failed > 0 {
			return errChecksFailed
		}
	}
	return nil
}
