package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/logging"
	"github.com/ppiankov/justact/internal/scenario"
	"github.com/ppiankov/justact/internal/trace"
)

var (
	runTrace        string
	runSQLite       string
	runMaxRounds    uint64
	runFormat       string
	runNoTimestamps bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Append the run to this JSONL trace")
	runCmd.Flags().StringVar(&runSQLite, "sqlite", "", "Also record the run in this SQLite database")
	runCmd.Flags().Uint64Var(&runMaxRounds, "max-rounds", 0, "Round bound (0 = scenario or config value)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "text", "Output format (text|json)")
	runCmd.Flags().BoolVar(&runNoTimestamps, "no-timestamps", false, "Leave trace timestamps empty for reproducible files")
}

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run one scenario",
	Long: "Runs a scenario file round by round, audits every action at the end of\n" +
		"its round and prints how the run compared with the file's expectations.",
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	sink, err := openSinks(pick(runTrace, cfg.TracePath), pick(runSQLite, cfg.SQLitePath), runNoTimestamps)
	if err != nil {
		return err
	}

	opts := scenarioOptions(sink)
	if runMaxRounds > 0 {
		opts.MaxRounds = runMaxRounds
	}
	result, err := scenario.Run(cmd.Context(), s, opts)
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return err
	}
	result.File = args[0]
	return printResults(cmd, []*scenario.RunResult{result}, runFormat)
}

// scenarioOptions applies the loaded config to a scenario run. The
// scenario file's own max_rounds wins over the config's.
func scenarioOptions(sink trace.Emitter) scenario.Options {
	opts := scenario.Options{
		Backends:     cfg.Backends(),
		Emitter:      sink,
		Logger:       logging.Logger(),
		Requirements: cfg.Requirements,
		ConfigHash:   cfgHash,
	}
	opts.DefaultRounds = cfg.MaxRounds
	return opts
}

// openSinks opens the requested trace sinks. It returns nil when neither
// path is set.
func openSinks(jsonlPath, sqlitePath string, noTimestamps bool) (trace.Emitter, error) {
	var sinks trace.Multi
	if jsonlPath != "" {
		var opts []trace.LogOption
		if noTimestamps {
			opts = append(opts, trace.WithoutTimestamps())
		}
		l, err := trace.Open(jsonlPath, opts...)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, l)
	}
	if sqlitePath != "" {
		db, err := trace.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		sinks = append(sinks, db)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
