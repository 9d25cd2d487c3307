package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshAll bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [treasury]",
	Short: "Reconcile treasuries against the ledger index",
	Long: `Refresh pulls new transactions from the ledger index, settles pending
transfers, and re-reads the authoritative vault balance. Pass a treasury
id, or --all to sweep every treasury.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "refresh every treasury")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !refreshAll {
		return fmt.Errorf("name a treasury or pass --all")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ids := args
	if refreshAll {
		treasuries, err := a.store.ListTreasuries(ctx)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(treasuries))
		for _, t := range treasuries {
			ids = append(ids, t.ID)
		}
	}

	for _, id := range ids {
		sum, err := a.vault.Refresh(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d new, %d promoted, %d failed, cursor %d, state %s\n",
			sum.TreasuryID, sum.NewRecords, sum.Promoted, sum.Failed, sum.Cursor, sum.State)
	}
	return nil
}
