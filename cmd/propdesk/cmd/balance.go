package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [amount]",
	Short: "Show or set the active book's balance",
	Long: `Without an argument, print the balances of both books. With one, set the
active book's balance to that amount.

Examples:
  propdesk balance
  propdesk balance 250000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	var amount float64
	if len(args) == 1 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		amount = v
	}

	return withApp(cmd.Context(), func(a *app) error {
		out := cmd.OutOrStdout()
		cur := a.cfg.Account.Currency
		if len(args) == 1 {
			if err := a.ledger.UpdateBalance(cmd.Context(), amount); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ %s balance set to %.2f %s\n", a.ledger.AccountMode(), amount, cur)
			return nil
		}
		fmt.Fprintf(out, "Evaluation: %.2f %s\n", a.ledger.EvaluationBalance(), cur)
		fmt.Fprintf(out, "Funded:     %.2f %s\n", a.ledger.FundedBalance(), cur)
		return nil
	})
}
