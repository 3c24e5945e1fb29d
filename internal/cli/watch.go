package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/logging"
	"github.com/ppiankov/justact/internal/scenario"
)

var watchDebounce time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", scenario.DefaultDebounce, "Quiet period after the last write before rerunning")
}

var watchCmd = &cobra.Command{
	Use:   "watch <scenario>...",
	Short: "Rerun scenarios whenever they change",
	Long:  "Runs each scenario once, then reruns a file every time it is saved.\nStops on interrupt.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rerun := func(path string) {
		r, err := scenario.LoadAndRun(ctx, path, scenarioOptions(nil))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			return
		}
		fmt.Fprint(out, scenario.FormatText([]*scenario.RunResult{r}))
	}

	w, err := scenario.NewWatcher(args, watchDebounce, logging.Logger(), rerun)
	if err != nil {
		return err
	}
	for _, path := range args {
		rerun(path)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %d scenario file(s), press Ctrl-C to stop\n", len(args))
	return w.Run(ctx)
}
