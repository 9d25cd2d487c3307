//go:build blackbox

package blackbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

// writeVaultConfig lays down a config with one test-mode treasury seeded
// with 100000 units and returns the config path. Every CLI invocation is a
// fresh process, so the simulated ledger is rebuilt from the seed each time
// while the sqlite store carries state across invocations.
func writeVaultConfig(t *testing.T, dir, pendingTimeout string) string {
	t.Helper()

	cfg := fmt.Sprintf(`log:
  level: warn
store:
  type: sqlite
  path: %s
operator: alice
policy:
  pending_timeout: %s
treasuries:
  - id: ops
    name: Operations
    vault_principal: vault-ops
    test_mode: true
    admins:
      - alice
    seed:
      - kind: mint
        to: vault-ops
        amount: 100000
`, filepath.Join(dir, "treasury.db"), pendingTimeout)

	path := filepath.Join(dir, "treasury.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
