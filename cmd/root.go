// Package cmd implements the subledger command-line interface.
package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "subledger",
		Short:         "Creator subscription ledger",
		Long:          "subledger manages creator subscription accounts: subscribers prepay into a per-account balance, owners collect a fixed fee each period, and every movement of value is recorded in an append-only event log.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default: ./subledger.yaml or ~/.subledger/subledger.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newRegistryCmd(app),
		newSubscribeCmd(app),
		newDepositCmd(app),
		newWithdrawCmd(app),
		newUnsubscribeCmd(app),
		newChargeCmd(app),
		newBillCmd(app),
		newServeCmd(app),
	)

	return rootCmd
}
