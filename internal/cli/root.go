package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/config"
	"github.com/ppiankov/justact/internal/logging"
)

var (
	configPath string
	logLevel   string

	cfg     = config.DefaultConfig()
	cfgHash string
)

// errChecksFailed is returned when a scenario expectation does not hold.
var errChecksFailed = errors.New("scenario expectations failed")

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.justact/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace|debug|info|warn|error|disabled)")
}

var rootCmd = &cobra.Command{
	Use:   "justact",
	Short: "Simulator for justified actions under shared agreements",
	Long: "Runs actors that publish statements and actions against a shared agreement,\n" +
		"audits every action at the end of its round, and records a hash-chained trace.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, hash, err := config.LoadWithHash(configPath)
		if err != nil {
			return err
		}
		cfg, cfgHash = loaded, hash
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logging.Configure(logging.ProfileRuntime, cmd.ErrOrStderr(), level)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "justact: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
