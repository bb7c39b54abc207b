package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"consensus-engine/control"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# laws: %v\n%s", control.Laws(), out)
		return nil
	},
}
