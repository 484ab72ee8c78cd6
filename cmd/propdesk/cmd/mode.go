package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/propdesk/ledger"
)

var modeCmd = &cobra.Command{
	Use:   "mode [Evaluation|Funded]",
	Short: "Show or switch the active account mode",
	Long: `Without an argument, print the active account mode. With one, switch to it.
The choice is remembered per user.

Examples:
  propdesk mode
  propdesk mode Funded`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMode,
}

func init() {
	rootCmd.AddCommand(modeCmd)
}

func runMode(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			fmt.Fprintln(out, a.ledger.AccountMode())
			return nil
		}

		mode, err := ledger.ParseAccountMode(args[0])
		if err != nil {
			return err
		}
		if err := a.ledger.SetAccountMode(cmd.Context(), mode); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Active account mode: %s (balance %.2f %s)\n", mode, a.ledger.Balance(), a.cfg.Account.Currency)
		return nil
	})
}
