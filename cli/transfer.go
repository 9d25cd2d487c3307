package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/treasury/token"
)

var (
	transferMemo string
	transferAs   string
)

var transferCmd = &cobra.Command{
	Use:   "transfer <treasury> <to-principal> <amount>",
	Short: "Authorize and submit an outbound transfer",
	Long: `Transfer submits an outbound payment from the treasury vault. The amount
is a decimal display value (e.g. 0.0025) converted to smallest units using
the configured token decimals. The transfer is recorded pending and settles
on a later refresh.

The requester must be a treasury admin. It defaults to the operator config
field and can be overridden with --as.`,
	Args: cobra.ExactArgs(3),
	RunE: runTransfer,
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().StringVarP(&transferMemo, "memo", "m", "", "memo recorded on the ledger")
	transferCmd.Flags().StringVar(&transferAs, "as", "", "requesting principal (defaults to operator)")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	requester := transferAs
	if requester == "" {
		requester = a.cfg.Operator
	}
	if requester == "" {
		return fmt.Errorf("no requesting principal: pass --as or set operator in the config")
	}

	meta := a.cfg.Meta()
	amount, err := token.ParseUnits(args[2], meta.Decimals)
	if err != nil {
		return fmt.Errorf("amount %q: %w", args[2], err)
	}

	rcpt, err := a.vault.Transfer(cmd.Context(), args[0], requester, args[1], amount, transferMemo)
	if err != nil {
		return err
	}

	fmt.Printf("Transfer accepted:\n")
	fmt.Printf("  Tx: %d\n", rcpt.TxID)
	fmt.Printf("  To: %s\n", rcpt.To)
	fmt.Printf("  Amount: %s %s\n", token.FormatUnits(rcpt.Amount, meta.Decimals), meta.Symbol)
	fmt.Printf("  Fee: %d units\n", rcpt.Fee)
	fmt.Printf("  Ref: %s\n", rcpt.Ref)
	fmt.Println("\nPending until the next refresh confirms it.")
	return nil
}
