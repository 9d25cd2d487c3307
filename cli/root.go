package cli

import (
	"github.com/spf13/cobra"

	"github.com/rustyeddy/treasury/config"
)

var rootCmd = &cobra.Command{
	Use:   "treasury",
	Short: "Custodial token treasury with ledger reconciliation",
	Long: `Treasury manages custodial token vaults reconciled against an ICRC-style ledger.

It provides commands for:
  - Creating treasuries declared in a config file
  - Serving the vault JSON-RPC API
  - Inspecting balances, claims and transaction history
  - Authorizing outbound transfers
  - Refreshing local state from the ledger index

All balance math happens in integer smallest units; amounts on the command
line are decimal display values converted at the edge.`,
	SilenceUsage: true,
}

var cfgPath string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgPath)
}
