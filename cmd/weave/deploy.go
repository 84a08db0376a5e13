package main

import (
	"fmt"
	"os"

	"github.com/aretw0/weave/internal/cli"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <platform>",
	Short: "Run the deployment pipeline of one platform",
	Long: `Runs pre-check, build, test, deploy and verify. Medium and high urgency
pipelines restore the artifact snapshot and run the rollback command when a step fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urgency, _ := cmd.Flags().GetString("urgency")
		env, _ := cmd.Flags().GetString("env")
		u := domain.Urgency(urgency)
		switch u {
		case domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh:
		default:
			return fmt.Errorf("unknown urgency %q", urgency)
		}
		return cli.Deploy(options(cmd), args[0], u, env, os.Stdout, os.Stderr)
	},
}

func init() {
	deployCmd.Flags().String("urgency", string(domain.UrgencyMedium), "Urgency: low, medium or high")
	deployCmd.Flags().String("env", "", "Target environment (default: first declared, or production)")
	rootCmd.AddCommand(deployCmd)
}
