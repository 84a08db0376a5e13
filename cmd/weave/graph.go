package main

import (
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the dependency graph as Mermaid",
	Long:  `Outputs a Mermaid diagram (graph TD) of the platforms and their dependents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		return cli.Graph(options(cmd), from, os.Stdout)
	},
}

func init() {
	graphCmd.Flags().String("from", "", "Highlight the platforms a change in this platform rebuilds")
	rootCmd.AddCommand(graphCmd)
}
