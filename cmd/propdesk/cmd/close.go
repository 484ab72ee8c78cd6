package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/propdesk/pricing"
)

var closeCmd = &cobra.Command{
	Use:   "close <position-id>",
	Short: "Close an open position",
	Long: `Close a position in the active book, crediting its current price × quantity
and recording a filled market sell.

By default the price stored with the position is used. --mark first moves
every open position to a fresh mock quote.

Examples:
  propdesk close 01HRX2Y3Z4...
  propdesk close 01HRX2Y3Z4... --mark`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

var closeMark bool

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().BoolVar(&closeMark, "mark", false, "mark positions to a fresh mock quote before closing")
}

func runClose(cmd *cobra.Command, args []string) error {
	positionID := args[0]

	return withApp(cmd.Context(), func(a *app) error {
		if closeMark {
			feed := pricing.NewMockFeed(a.cfg.Pricing.Seeds, a.cfg.Pricing.Volatility, a.cfg.Pricing.Seed)
			feed.Step()
			a.ledger.MarkPrices(cmd.Context(), feed)
		}

		sell, ok := a.ledger.ClosePosition(cmd.Context(), positionID)
		if !ok {
			return fmt.Errorf("position %s not found in %s book", positionID, a.ledger.AccountMode())
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Closed %s: sold %g %s @ %.2f\n", positionID, sell.Quantity, sell.Symbol, sell.Price)
		fmt.Fprintf(out, "  %s balance: %.2f %s\n", a.ledger.AccountMode(), a.ledger.Balance(), a.cfg.Account.Currency)
		return nil
	})
}
