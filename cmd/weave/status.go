package main

import (
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe every platform and print the status",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return cli.Status(options(cmd), asJSON, os.Stdout, os.Stderr)
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}
