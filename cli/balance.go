package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/treasury/token"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <treasury> [principal]",
	Short: "Show a reconciled balance",
	Long: `Balance reads from the local store, it never calls the ledger. Without a
principal it shows the treasury's vault balance and the portion not locked
under pending transfers. With a principal it shows that member's claim.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	principal := ""
	if len(args) == 2 {
		principal = args[1]
	}

	view, err := a.vault.Balance(cmd.Context(), args[0], principal)
	if err != nil {
		return err
	}

	meta := a.cfg.Meta()
	fmt.Printf("%s: %s %s (%d units)\n",
		view.Principal, token.FormatUnits(view.Amount, meta.Decimals), meta.Symbol, view.Amount)
	if view.Vault {
		fmt.Printf("  available: %s %s\n", token.FormatUnits(view.Available, meta.Decimals), meta.Symbol)
	}
	return nil
}
