package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/types"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create and inspect ledger accounts",
	}

	cmd.AddCommand(
		newAccountCreateCmd(app),
		newAccountListCmd(app),
		newAccountShowCmd(app),
		newAccountEventsCmd(app),
		newAccountReconcileCmd(app),
	)

	return cmd
}

func newAccountCreateCmd(app *app) *cobra.Command {
	var (
		owner       string
		fee         string
		period      time.Duration
		description string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account owned by --as and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := parseAmount(fee)
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				a, err := s.ledger.CreateAccount(ctx, types.Identity(owner), amount, period, description)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), a.ID.String())
				return err
			})
		},
	}

	cmd.Flags().StringVar(&owner, "as", "", "owner identity")
	cmd.Flags().StringVar(&fee, "fee", "", "fee charged per period, in base units")
	cmd.Flags().DurationVar(&period, "period", 0, "billing period, e.g. 720h")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	_ = cmd.MarkFlagRequired("as")
	_ = cmd.MarkFlagRequired("fee")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	var (
		owner  string
		active bool
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				accounts, err := s.ledger.ListAccounts(ctx, account.ListOpts{
					Owner:           types.Identity(owner),
					WithSubscribers: active,
					Limit:           limit,
					Offset:          offset,
				})
				if err != nil {
					return err
				}
				for _, a := range accounts {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tfee=%s\tperiod=%s\tsubscribers=%d\tbalance=%s\n",
						a.ID, a.Owner, a.Fee, a.Period, a.SubscriberCount, a.OwnerBalance)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only accounts owned by this identity")
	cmd.Flags().BoolVar(&active, "active", false, "only accounts with active subscribers")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of accounts")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of accounts to skip")

	return cmd
}

func newAccountShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show an account and its subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				a, err := s.ledger.GetAccount(ctx, accountID)
				if err != nil {
					return err
				}
				subs, err := s.ledger.ListSubscriptions(ctx, accountID, account.SubscriptionListOpts{})
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), struct {
						Account       *account.Account        `json:"account"`
						Subscriptions []*account.Subscription `json:"subscriptions"`
					}{a, subs})
				}

				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "id: %s\nowner: %s\nfee: %s\nperiod: %s\ndescription: %s\nowner_balance: %s\nsubscribers: %d\n",
					a.ID, a.Owner, a.Fee, a.Period, a.Description, a.OwnerBalance, a.SubscriberCount)
				for _, sub := range subs {
					_, _ = fmt.Fprintf(out, "%s\tsubscribed=%t\tbalance=%s\tnext_charge=%s\n",
						sub.Subscriber, sub.IsSubscribed, sub.Balance, sub.NextChargeAt(a.Period).Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAccountEventsCmd(app *app) *cobra.Command {
	var (
		asJSON bool
		party  string
		kinds  []string
	)

	cmd := &cobra.Command{
		Use:   "events <account-id>",
		Short: "Print an account's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}

			opts := event.ListOpts{Party: types.Identity(party)}
			for _, k := range kinds {
				opts.Types = append(opts.Types, event.Type(k))
			}

			return app.run(cmd, func(ctx context.Context, s *session) error {
				events, err := s.ledger.ListEvents(ctx, accountID, opts)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				for _, e := range events {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
						e.OccurredAt.Format(time.RFC3339), e.Type, e.Party, e.Amount)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&party, "party", "", "only events for this identity")
	cmd.Flags().StringSliceVar(&kinds, "type", nil, "only events of these types")
	return cmd
}

func newAccountReconcileCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <account-id>",
		Short: "Check that an account's balances match its lifetime flows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				r, err := s.ledger.Reconcile(ctx, accountID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "held: %s\nexpected: %s\nactive_subscriptions: %d\nbalanced: %t\n",
					r.Held, r.Expected, r.ActiveSubscriptions, r.Balanced)
				if !r.Balanced {
					return fmt.Errorf("account %s is not balanced", accountID)
				}
				return nil
			})
		},
	}
}
