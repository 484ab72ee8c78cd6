package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/propdesk/config"
)

var rootCmd = &cobra.Command{
	Use:   "propdesk",
	Short: "A paper-trading ledger for prop firm evaluation and funded accounts",
	Long: `Propdesk keeps two parallel trading books per user, Evaluation and Funded,
each with its own positions, orders and cash balance.

It provides tools for:
  - Placing orders and closing positions from the command line
  - Switching the active account mode
  - Valuing open positions against a live mock quote feed
  - Serving the ledger over HTTP and streaming quotes over a websocket
  - Replicating every change to a remote Postgres document store

State is kept in a local SQLite file, namespaced by user and account mode.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	userFlag string
	dbFlag   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "user id (overrides user.id; empty means guest)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "local SQLite path (overrides storage.path)")
}

// loadConfig reads --config if given and applies the persistent overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if userFlag != "" {
		cfg.User.ID = userFlag
	}
	if dbFlag != "" {
		cfg.Storage.Path = dbFlag
	}
	return cfg, nil
}
