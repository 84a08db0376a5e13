package main

import (
	"fmt"
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Weave keeps a family of platforms built, synchronized and deployed",
	Long: `Weave watches a shared library and the platforms that depend on it, rebuilds
them in dependency order, propagates shared files, drives integration channels
and deploys stale or flagged platforms with rollback.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to weave.yaml (default: discovered in --dir)")
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the weave configuration")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and lifecycle audit logs")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("store", "", "Override settings.store (memory, file, redis)")
}

func options(cmd *cobra.Command) cli.Options {
	flags := cmd.Flags()
	opts := cli.Options{}
	opts.ConfigPath, _ = flags.GetString("config")
	opts.Dir, _ = flags.GetString("dir")
	opts.Debug, _ = flags.GetBool("debug")
	opts.JSONLogs, _ = flags.GetBool("json-logs")
	opts.Store, _ = flags.GetString("store")
	return opts
}
