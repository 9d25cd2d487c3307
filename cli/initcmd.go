package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/treasury/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the treasuries declared in the config",
	Long: `Init creates every treasury listed in the config file. Treasuries that
already exist keep their reconciled state (balance, cursor, history) but
adopt the admin list from the config, so init is safe to re-run after
edits.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	for _, tc := range a.cfg.Treasuries {
		err := a.store.CreateTreasury(ctx, tc.Treasury())
		switch {
		case err == nil:
			fmt.Printf("created %s (%s)\n", tc.ID, tc.VaultPrincipal)
		case errors.Is(err, vault.ErrExists):
			if err := a.store.UpdateAdmins(ctx, tc.ID, tc.Admins); err != nil {
				return fmt.Errorf("update admins %q: %w", tc.ID, err)
			}
			fmt.Printf("exists  %s (admins updated)\n", tc.ID)
		default:
			return fmt.Errorf("create %q: %w", tc.ID, err)
		}
	}
	return nil
}
