package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/treasury/token"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reconciliation state across all treasuries",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.vault.Status(cmd.Context())
	if err != nil {
		return err
	}

	meta := a.cfg.Meta()
	fmt.Printf("Vault status (%s, %d treasuries):\n", meta.Symbol, len(status.Treasuries))
	for _, t := range status.Treasuries {
		mode := "live"
		if t.TestMode {
			mode = "test"
		}
		fmt.Printf("  %-16s %-4s %-8s balance %s  available %s  pending %d  cursor %d\n",
			t.ID, mode, t.State,
			token.FormatUnits(t.Balance, meta.Decimals),
			token.FormatUnits(t.Available, meta.Decimals),
			t.Pending, t.Cursor)
	}
	fmt.Printf("\nTotal: balance %s %s, available %s %s\n",
		token.FormatUnits(status.TotalBalance, meta.Decimals), meta.Symbol,
		token.FormatUnits(status.TotalAvailable, meta.Decimals), meta.Symbol)
	return nil
}
