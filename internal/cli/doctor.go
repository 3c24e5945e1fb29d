package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/config"
	"github.com/ppiankov/justact/internal/policy/builtin"
	"github.com/ppiankov/justact/internal/scenario"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, backends and trace locations",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{label: "justact binary", ok: true, detail: fmt.Sprintf("%s (%s)", execPath, version)})
	} else {
		checks = append(checks, checkResult{label: "justact binary", detail: "cannot determine executable path"})
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	switch _, err := os.Stat(path); {
	case path == "":
		checks = append(checks, checkResult{label: "config file", detail: "cannot determine home directory"})
	case err != nil:
		checks = append(checks, checkResult{label: "config file", detail: path + " missing", fix: "justact init"})
	default:
		if _, hash, err := config.LoadWithHash(path); err != nil {
			checks = append(checks, checkResult{label: "config file", detail: err.Error()})
		} else {
			checks = append(checks, checkResult{label: "config file", ok: true, detail: fmt.Sprintf("%s (%s)", path, hash[:19])})
		}
	}

	if reg, err := builtin.Registry(cfg.Backends()); err != nil {
		checks = append(checks, checkResult{label: "policy backends", detail: err.Error()})
	} else {
		checks = append(checks, checkResult{label: "policy backends", ok: true, detail: strings.Join(reg.Languages(), ", ")})
	}

	if path != "" {
		example := filepath.Join(filepath.Dir(path), "scenarios", "example.yaml")
		if _, err := scenario.Load(example); err != nil {
			checks = append(checks, checkResult{label: "example scenario", detail: "missing or invalid", fix: "justact init --force"})
		} else {
			checks = append(checks, checkResult{label: "example scenario", ok: true, detail: example})
		}
	}

	for _, sink := range []struct{ label, path string }{{"trace directory", cfg.TracePath}, {"sqlite directory", cfg.SQLitePath}} {
		if sink.path == "" {
			continue
		}
		dir := filepath.Dir(sink.path)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			checks = append(checks, checkResult{label: sink.label, detail: dir + " missing", fix: "mkdir -p " + dir})
		} else {
			checks = append(checks, checkResult{label: sink.label, ok: true, detail: dir})
		}
	}

	out := cmd.OutOrStdout()
	hasFailures := false
	for _, c := range checks {
		mark := "\u2713"
		if !c.ok {
			mark = "\u2717"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(out, line)
	}

	if hasFailures {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "All checks passed.")
	return nil
}
