package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/propdesk/ledger"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place an order in the active book",
	Long: `Record an order in the active account mode.

A filled buy debits price × quantity from the balance and opens a position.
Pending orders and filled sells are recorded only.

Examples:
  propdesk order --symbol COMI --price 50 --qty 100
  propdesk order --symbol TMGH --type limit --status pending --price 19.5 --qty 200`,
	RunE: runOrder,
}

var (
	orderSymbol string
	orderSide   string
	orderKind   string
	orderStatus string
	orderPrice  float64
	orderQty    float64
)

func init() {
	rootCmd.AddCommand(orderCmd)

	orderCmd.Flags().StringVarP(&orderSymbol, "symbol", "s", "", "instrument symbol (required)")
	orderCmd.Flags().StringVar(&orderSide, "side", "buy", "buy or sell")
	orderCmd.Flags().StringVar(&orderKind, "type", "market", "market, limit or stop")
	orderCmd.Flags().StringVar(&orderStatus, "status", "filled", "filled, pending or cancelled")
	orderCmd.Flags().Float64VarP(&orderPrice, "price", "p", 0, "order price")
	orderCmd.Flags().Float64VarP(&orderQty, "qty", "q", 0, "quantity")
	orderCmd.MarkFlagRequired("symbol")
}

func runOrder(cmd *cobra.Command, args []string) error {
	req := ledger.OrderRequest{
		Symbol:   strings.ToUpper(orderSymbol),
		Side:     ledger.Side(orderSide),
		Kind:     ledger.OrderKind(orderKind),
		Price:    orderPrice,
		Quantity: orderQty,
		Status:   ledger.OrderStatus(orderStatus),
	}

	return withApp(cmd.Context(), func(a *app) error {
		o, err := a.ledger.AddOrder(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("add order: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Order %s: %s %s %g @ %.2f (%s, %s)\n",
			o.ID, o.Side, o.Symbol, o.Quantity, o.Price, o.Kind, o.Status)
		fmt.Fprintf(out, "  %s balance: %.2f %s\n", a.ledger.AccountMode(), a.ledger.Balance(), a.cfg.Account.Currency)
		return nil
	})
}
