package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/propdesk/ledger"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active book",
	Long: `Print the positions, orders and balance of the active account mode.

Examples:
  propdesk show
  propdesk show --user alice --mode Funded`,
	RunE: runShow,
}

var showMode string

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringVarP(&showMode, "mode", "m", "", "book to print instead of the active one")
}

func runShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		mode := a.ledger.AccountMode()
		if showMode != "" {
			m, err := ledger.ParseAccountMode(showMode)
			if err != nil {
				return err
			}
			mode = m
		}
		printBook(cmd.OutOrStdout(), a.ledger.UserID(), mode, a.ledger.Book(mode), a.cfg.Account.Currency)
		return nil
	})
}

func printBook(out io.Writer, userID string, mode ledger.AccountMode, b ledger.Book, currency string) {
	fmt.Fprintf(out, "User: %s  Mode: %s  Balance: %.2f %s\n", userID, mode, b.Balance, currency)

	fmt.Fprintf(out, "\nPositions (%d)\n", len(b.Positions))
	if len(b.Positions) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tSIDE\tQTY\tENTRY\tCURRENT\tOPENED")
		for _, p := range b.Positions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%.2f\t%.2f\t%s\n",
				p.ID, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice, p.OpenTime.Format(time.RFC3339))
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nOrders (%d)\n", len(b.Orders))
	if len(b.Orders) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tSIDE\tTYPE\tQTY\tPRICE\tSTATUS\tTIME")
		for _, o := range b.Orders {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%.2f\t%s\t%s\n",
				o.ID, o.Symbol, o.Side, o.Kind, o.Quantity, o.Price, o.Status, o.Time.Format(time.RFC3339))
		}
		w.Flush()
	}
}
