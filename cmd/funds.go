package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// amountCmd builds a command of the form "<use> <account-id> --as X --amount N".
func amountCmd(app *app, use, short string, op func(ctx context.Context, s *session, cmd *cobra.Command, accountID id.AccountID, caller types.Identity, amount types.Amount) error) *cobra.Command {
	var caller, amount string

	cmd := &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				return op(ctx, s, cmd, accountID, types.Identity(caller), value)
			})
		},
	}

	cmd.Flags().StringVar(&caller, "as", "", "calling identity")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in base units")
	_ = cmd.MarkFlagRequired("as")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newSubscribeCmd(app *app) *cobra.Command {
	return amountCmd(app, "subscribe", "Subscribe --as to an account, paying --amount up front",
		func(ctx context.Context, s *session, cmd *cobra.Command, accountID id.AccountID, caller types.Identity, amount types.Amount) error {
			sub, err := s.ledger.Subscribe(ctx, accountID, caller, amount)
			if err != nil {
				return err
			}
			return printSubscription(cmd, sub)
		})
}

func newDepositCmd(app *app) *cobra.Command {
	return amountCmd(app, "deposit", "Top up an active subscription",
		func(ctx context.Context, s *session, cmd *cobra.Command, accountID id.AccountID, caller types.Identity, amount types.Amount) error {
			sub, err := s.ledger.DepositFunds(ctx, accountID, caller, amount)
			if err != nil {
				return err
			}
			return printSubscription(cmd, sub)
		})
}

func newWithdrawCmd(app *app) *cobra.Command {
	return amountCmd(app, "withdraw", "Withdraw from the owner balance or the caller's subscription balance",
		func(ctx context.Context, s *session, cmd *cobra.Command, accountID id.AccountID, caller types.Identity, amount types.Amount) error {
			if err := s.ledger.Withdraw(ctx, accountID, caller, amount); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "withdrew %s to %s\n", amount, caller)
			return err
		})
}

func newUnsubscribeCmd(app *app) *cobra.Command {
	var caller string

	cmd := &cobra.Command{
		Use:   "unsubscribe <account-id>",
		Short: "Leave an account and refund the remaining balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				refund, err := s.ledger.Unsubscribe(ctx, accountID, types.Identity(caller))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "refunded %s to %s\n", refund, caller)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&caller, "as", "", "calling identity")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func printSubscription(cmd *cobra.Command, sub *account.Subscription) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\tsubscribed=%t\tbalance=%s\n",
		sub.Subscriber, sub.IsSubscribed, sub.Balance)
	return err
}
