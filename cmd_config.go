package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devskill-org/gridplan/planner"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return planner.DefaultConfig().SaveConfigToWriter(os.Stdout)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file and environment)",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.String())
	},
}

func init() {
	configCmd.AddCommand(configDefaultCmd)
	configCmd.AddCommand(configShowCmd)
}
