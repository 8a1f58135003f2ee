package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

func newRegistryCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Query the account registry",
	}

	cmd.AddCommand(
		newRegistryOwnerCmd(app),
		newRegistrySubscriberCmd(app),
		newRegistryKnownCmd(app),
		newRegistryCountCmd(app),
	)

	return cmd
}

func newRegistryOwnerCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "owner <identity>",
		Short: "List accounts created by an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				ids, err := s.ledger.ListAccountsByOwner(ctx, types.Identity(args[0]))
				if err != nil {
					return err
				}
				return printIDs(cmd, ids)
			})
		},
	}
}

func newRegistrySubscriberCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscriber <identity>",
		Short: "List accounts an identity has ever subscribed to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				ids, err := s.ledger.ListAccountsBySubscriber(ctx, types.Identity(args[0]))
				if err != nil {
					return err
				}
				return printIDs(cmd, ids)
			})
		},
	}
}

func newRegistryKnownCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "known <account-id>",
		Short: "Report whether the registry created an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				known, err := s.ledger.IsKnownAccount(ctx, accountID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), known)
				return err
			})
		},
	}
}

func newRegistryCountCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				n, err := s.ledger.NumAccounts(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

func printIDs(cmd *cobra.Command, ids []id.AccountID) error {
	for _, accountID := range ids {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), accountID.String()); err != nil {
			return err
		}
	}
	return nil
}
