package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/trace"
)

var tailLines int

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceVerifyCmd)
	traceCmd.AddCommand(traceTailCmd)
	traceTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace file operations",
	Long:  "Commands for verifying and inspecting hash-chained run traces.",
}

var traceVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a trace",
	Long: "Walks the JSONL trace and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runTraceVerify,
}

var traceTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent trace entries",
	Long:  "Reads the last N entries of a JSONL trace or SQLite trace database and pretty-prints them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceTail,
}

func runTraceVerify(cmd *cobra.Command, args []string) error {
	result := trace.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return errChecksFailed
}

func runTraceTail(cmd *cobra.Command, args []string) error {
	entries, err := trace.ReadAll(args[0])
	if err != nil {
		return err
	}
	start := max(len(entries)-tailLines, 0)
	for _, e := range entries[start:] {
		out, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", e.Seq, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return nil
}
