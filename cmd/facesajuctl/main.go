package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "facesajuctl",
		Short:         "Operator tooling for the facesaju service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("output", "o", "table", "Output format: table or json")
	_ = viper.BindPFlag("output", root.PersistentFlags().Lookup("output"))
	viper.SetEnvPrefix("FACESAJUCTL")
	viper.AutomaticEnv()

	root.AddCommand(
		newMigrateCmd(),
		newCouponCmd(),
		newSettlementCmd(),
		newHashPasswordCmd(),
	)
	return root
}
