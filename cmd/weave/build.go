package main

import (
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build <platform>",
	Short: "Build one platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return cli.Build(options(cmd), args[0], force, os.Stdout, os.Stderr)
	},
}

var cascadeCmd = &cobra.Command{
	Use:   "cascade [platform]",
	Short: "Build a platform and every platform that depends on it",
	Long:  `Builds in dependency order starting from the given platform, or from the shared library when none is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin := ""
		if len(args) > 0 {
			origin = args[0]
		}
		return cli.Cascade(options(cmd), origin, os.Stdout, os.Stderr)
	},
}

func init() {
	buildCmd.Flags().BoolP("force", "f", false, "Wait for an in-flight build and build again")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cascadeCmd)
}
