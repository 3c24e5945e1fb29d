package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/justact/internal/policy/builtin"
)

func init() {
	rootCmd.AddCommand(backendsCmd)
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the policy languages agreements can be written in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := builtin.Registry(cfg.Backends())
		if err != nil {
			return err
		}
		for _, lang := range reg.Languages() {
			fmt.Fprintln(cmd.OutOrStdout(), lang)
		}
		return nil
	},
}
