package main

import (
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator until interrupted",
	Long: `Probes every platform, starts the file watchers, integration channels, the
deployment ticker and (when settings.http.addr is set) the HTTP API. SIGINT or
SIGTERM stops everything and writes the shutdown report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Run(options(cmd), os.Stdout, os.Stderr)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.RunE = runCmd.RunE
}
