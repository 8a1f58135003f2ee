package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/types"
)

func newChargeCmd(app *app) *cobra.Command {
	var caller string

	cmd := &cobra.Command{
		Use:   "charge <account-id> [subscriber...]",
		Short: "Charge subscribers whose period has elapsed",
		Long:  "Charge the listed subscribers, or every active subscriber when none are listed. Only the account owner may charge.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return app.run(cmd, func(ctx context.Context, s *session) error {
				subscribers := make([]types.Identity, 0, len(args)-1)
				for _, arg := range args[1:] {
					subscribers = append(subscribers, types.Identity(arg))
				}
				if len(subscribers) == 0 {
					subs, err := s.ledger.ListSubscriptions(ctx, accountID, account.SubscriptionListOpts{ActiveOnly: true})
					if err != nil {
						return err
					}
					for _, sub := range subs {
						subscribers = append(subscribers, sub.Subscriber)
					}
				}

				results, err := s.ledger.ChargeSubscriptions(ctx, accountID, types.Identity(caller), subscribers)
				if err != nil {
					return err
				}
				for _, r := range results {
					line := fmt.Sprintf("%s\t%s", r.Subscriber, r.Outcome)
					if r.Reason != "" {
						line += "\t" + string(r.Reason)
					} else {
						line += "\t" + r.Amount.String()
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caller, "as", "", "calling identity (the account owner)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func newBillCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bill",
		Short: "Run one billing cycle over every account with active subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				report, err := s.ledger.RunBillingCycle(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "accounts: %d\ncharged: %d\ncanceled: %d\nfailed: %d\n",
					report.Accounts, report.Charged, report.Canceled, report.Failed)
				return err
			})
		},
	}
}
