package main

import (
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the dependency graph",
	Long:  `Loads the configuration, rejects unknown ids, self-loops and cycles, and prints the cascade waves from the shared library.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(options(cmd), os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
