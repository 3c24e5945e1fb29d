package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/config"
	"github.com/ppiankov/justact/internal/scenario"
)

var (
	initMode  string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.justact) or system (/etc/justact)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and an example scenario",
	Long: `Creates the config directory with a default config.yaml and a runnable
example scenario.

User mode (default):  writes to ~/.justact/
System mode:          writes to /etc/justact/ (requires root)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}

	var created []string

	configYAML, err := config.DefaultYAML()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if wrote, err := writeIfMissing(configPath, configYAML); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	examplePath := filepath.Join(configDir, "scenarios", "example.yaml")
	if wrote, err := writeIfMissing(examplePath, scenario.ExampleYAML); err != nil {
		return err
	} else if wrote {
		created = append(created, examplePath)
	}

	out := stdout(cmd)
	fmt.Fprintln(out, "justact init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, path := range created {
			fmt.Fprintf(out, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Try:")
	fmt.Fprintf(out, "  justact run %s --trace run.jsonl\n", examplePath)
	fmt.Fprintln(out, "  justact replay run.jsonl")
	return nil
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/justact", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".justact"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
