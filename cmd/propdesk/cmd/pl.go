package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/propdesk/pricing"
)

var plCmd = &cobra.Command{
	Use:   "pl",
	Short: "Value open positions against mock quotes",
	Long: `Print unrealized profit/loss of the active book's open positions.

Quotes come from the mock feed configured under pricing, random-walked
--steps times from the seed prices. Symbols without a quote are valued at
the price stored with the position.

Example:
  propdesk pl --steps 10`,
	RunE: runPL,
}

var plSteps int

func init() {
	rootCmd.AddCommand(plCmd)

	plCmd.Flags().IntVar(&plSteps, "steps", 1, "random-walk steps to advance the mock feed")
}

func runPL(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		feed := pricing.NewMockFeed(a.cfg.Pricing.Seeds, a.cfg.Pricing.Volatility, a.cfg.Pricing.Seed)
		for i := 0; i < plSteps; i++ {
			feed.Step()
		}

		v := a.ledger.Valuation(cmd.Context(), feed)
		out := cmd.OutOrStdout()
		cur := a.cfg.Account.Currency

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tSIDE\tQTY\tENTRY\tMARK\tVALUE\tP/L")
		for _, p := range v.Positions {
			mark := fmt.Sprintf("%.2f", p.Mark)
			if !p.Live {
				mark += "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%g\t%.2f\t%s\t%.2f\t%+.2f\n",
				p.Symbol, p.Side, p.Quantity, p.EntryPrice, mark, p.MarketValue, p.UnrealizedPL)
		}
		w.Flush()

		fmt.Fprintf(out, "\nMode: %s\n", v.Mode)
		fmt.Fprintf(out, "  Balance:       %.2f %s\n", v.Balance, cur)
		fmt.Fprintf(out, "  Cost basis:    %.2f %s\n", v.CostBasis, cur)
		fmt.Fprintf(out, "  Market value:  %.2f %s\n", v.MarketValue, cur)
		fmt.Fprintf(out, "  Unrealized:    %+.2f %s\n", v.UnrealizedPL, cur)
		fmt.Fprintf(out, "  Equity:        %.2f %s\n", v.Equity, cur)
		return nil
	})
}
