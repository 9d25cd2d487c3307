package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/treasury/token"
	"github.com/rustyeddy/treasury/vault"
)

var (
	txPrincipal string
	txLimit     int
	txCSVPath   string
)

var transactionsCmd = &cobra.Command{
	Use:     "transactions <treasury>",
	Aliases: []string{"tx"},
	Short:   "List reconciled transaction history, newest first",
	Args:    cobra.ExactArgs(1),
	RunE:    runTransactions,
}

func init() {
	rootCmd.AddCommand(transactionsCmd)
	transactionsCmd.Flags().StringVarP(&txPrincipal, "principal", "p", "", "only transactions touching this principal")
	transactionsCmd.Flags().IntVarP(&txLimit, "limit", "n", 50, "maximum records to list")
	transactionsCmd.Flags().StringVar(&txCSVPath, "csv", "", "write records to a CSV file instead of stdout")
}

func runTransactions(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.vault.Transactions(cmd.Context(), args[0], txPrincipal, txLimit)
	if err != nil {
		return err
	}

	meta := a.cfg.Meta()
	if txCSVPath != "" {
		if err := writeTransactionsCSV(txCSVPath, recs, meta.Decimals); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Printf("Wrote %d records to %s\n", len(recs), txCSVPath)
		return nil
	}

	fmt.Printf("%d transactions in %s:\n", len(recs), args[0])
	for _, rec := range recs {
		fmt.Printf("  %6d %-9s %-10s %s -> %s  %s (fee %d)",
			rec.TxID, rec.Status, rec.Kind,
			principalOrDash(rec.From), principalOrDash(rec.To),
			token.FormatUnits(rec.Amount, meta.Decimals), rec.Fee)
		if rec.Memo != "" {
			fmt.Printf("  %q", rec.Memo)
		}
		fmt.Println()
	}
	return nil
}

func principalOrDash(p string) string {
	if p == "" {
		return "-"
	}
	return p
}

func writeTransactionsCSV(path string, recs []vault.Transaction, decimals int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "kind", "from", "to", "amount", "fee", "memo", "timestamp", "status"}); err != nil {
		f.Close()
		return err
	}
	for _, rec := range recs {
		w.Write([]string{
			strconv.FormatUint(rec.TxID, 10),
			string(rec.Kind),
			rec.From,
			rec.To,
			token.FormatUnits(rec.Amount, decimals),
			strconv.FormatInt(rec.Fee, 10),
			rec.Memo,
			rec.Timestamp.UTC().Format(time.RFC3339),
			string(rec.Status),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
