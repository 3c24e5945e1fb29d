package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/trace"
)

var (
	replayRun    string
	replayActor  string
	replayKinds  string
	replayFormat string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayRun, "run", "", "Run id to replay (default: first run in the trace)")
	replayCmd.Flags().StringVar(&replayActor, "actor", "", "Only entries caused by or judged on this actor")
	replayCmd.Flags().StringVar(&replayKinds, "kind", "", "Comma-separated entry kinds to keep")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var replayCmd = &cobra.Command{
	Use:   "replay <trace>",
	Short: "Replay a run from a trace file",
	Long: "Reads a JSONL trace or SQLite trace database, filters by run, actor and kind,\n" +
		"and renders a round-by-round timeline with summary.",
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	entries, err := trace.ReadAll(args[0])
	if err != nil {
		return err
	}
	runID := replayRun
	if runID == "" && len(entries) > 0 {
		runID = entries[0].RunID
	}
	result := trace.Select(entries, trace.Filter{
		RunID: runID,
		Actor: replayActor,
		Kinds: trace.ParseKinds(replayKinds),
	})

	switch replayFormat {
	case "json":
		out, err := trace.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	case "text":
		fmt.Fprint(cmd.OutOrStdout(), trace.FormatTimeline(result))
	default:
		return fmt.Errorf("unknown format %q", replayFormat)
	}
	return nil
}
