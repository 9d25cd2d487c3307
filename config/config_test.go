package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const sampleYAML = `
log:
  level: debug
store:
  type: sqlite
  path: ./treasury.db
policy:
  page_limit: 50
  pending_timeout: 5m
server:
  listen: ":9090"
  refresh_cron: "@every 1m"
operator: alice
treasuries:
  - id: ops
    name: Operations
    vault_principal: vault-ops
    test_mode: true
    admins: [alice, bob]
    seed:
      - {kind: mint, to: vault-ops, amount: 100000}
      - {kind: transfer, from: carol, to: vault-ops, amount: 500}
`

func TestLoadFromFileYAML(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromFile(writeConfig(t, "treasury.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "@every 1m", cfg.Server.RefreshCron)
	assert.Equal(t, "alice", cfg.Operator)

	require.Len(t, cfg.Treasuries, 1)
	tc := cfg.Treasuries[0]
	assert.Equal(t, "ops", tc.ID)
	assert.True(t, tc.TestMode)
	assert.Equal(t, []string{"alice", "bob"}, tc.Admins)
	require.Len(t, tc.Seed, 2)
	assert.Equal(t, "mint", tc.Seed[0].Kind)
	assert.Equal(t, int64(100000), tc.Seed[0].Amount)

	// Configured knobs override defaults; everything else keeps them.
	p, err := cfg.Policy.Policy()
	require.NoError(t, err)
	assert.Equal(t, 50, p.PageLimit)
	assert.Equal(t, 5, p.MaxPages)
	assert.Equal(t, 5*time.Minute, p.PendingTimeout)
	assert.Equal(t, int64(10), p.DefaultFee)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	t.Parallel()

	body := `{
	  "store": {"type": "bolt", "path": "./treasury.bolt"},
	  "treasuries": [
	    {"id": "ops", "vault_principal": "vault-ops", "test_mode": true, "admins": ["alice"]}
	  ]
	}`
	cfg, err := LoadFromFile(writeConfig(t, "treasury.json", body))
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Store.Type)
	require.Len(t, cfg.Treasuries, 1)
}

func TestLoadFromFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Type: "sqlite", Path: "./treasury.db"},
		Treasuries: []TreasuryConfig{
			{ID: "ops", VaultPrincipal: "vault-ops", TestMode: true, Admins: []string{"alice"}},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing store type", func(c *Config) { c.Store.Type = "" }, "store.type is required"},
		{"bad store type", func(c *Config) { c.Store.Type = "postgres" }, "store.type must be"},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, "store.path is required"},
		{"bad decimals", func(c *Config) { c.Token.Decimals = 19 }, "token.decimals"},
		{"negative page limit", func(c *Config) { c.Policy.PageLimit = -1 }, "page limit"},
		{"bad pending timeout", func(c *Config) { c.Policy.PendingTimeout = "soon" }, "pending_timeout"},
		{"bad ledger timeout", func(c *Config) { c.Ledger.Timeout = "whenever" }, "ledger.timeout"},
		{"missing treasury id", func(c *Config) { c.Treasuries[0].ID = "" }, "id is required"},
		{"duplicate treasury id", func(c *Config) {
			c.Treasuries = append(c.Treasuries, c.Treasuries[0])
		}, "duplicate treasury id"},
		{"missing vault principal", func(c *Config) { c.Treasuries[0].VaultPrincipal = "" }, "vault_principal is required"},
		{"live treasury without ledger", func(c *Config) { c.Treasuries[0].TestMode = false }, "ledger.url and ledger.index_url"},
		{"seed on live treasury", func(c *Config) {
			c.Ledger = LedgerConfig{URL: "https://ledger", IndexURL: "https://index"}
			c.Treasuries[0].TestMode = false
			c.Treasuries[0].Seed = []SeedConfig{{Kind: "mint", To: "vault-ops", Amount: 1}}
		}, "seed entries require test_mode"},
		{"bad seed kind", func(c *Config) {
			c.Treasuries[0].Seed = []SeedConfig{{Kind: "airdrop", To: "vault-ops", Amount: 1}}
		}, "kind must be"},
		{"mint without to", func(c *Config) {
			c.Treasuries[0].Seed = []SeedConfig{{Kind: "mint", Amount: 1}}
		}, "mint requires 'to'"},
		{"seed amount", func(c *Config) {
			c.Treasuries[0].Seed = []SeedConfig{{Kind: "mint", To: "vault-ops", Amount: 0}}
		}, "amount must be positive"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Treasuries = validConfig().Treasuries
	cfg.Operator = "alice"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Store, got.Store)
	assert.Equal(t, cfg.Operator, got.Operator)
	assert.Equal(t, cfg.Treasuries, got.Treasuries)
}

func TestMetaOverrides(t *testing.T) {
	t.Parallel()

	cfg := Default()
	m := cfg.Meta()
	assert.Equal(t, "ckBTC", m.Symbol)
	assert.Equal(t, 8, m.Decimals)

	cfg.Token = TokenConfig{Symbol: "ckETH", Decimals: 18}
	m = cfg.Meta()
	assert.Equal(t, "ckETH", m.Symbol)
	assert.Equal(t, 18, m.Decimals)
}

func TestTreasuryConversion(t *testing.T) {
	t.Parallel()

	tc := TreasuryConfig{
		ID:             "ops",
		Name:           "Operations",
		VaultPrincipal: "vault-ops",
		TestMode:       true,
		Admins:         []string{"alice"},
	}
	tr := tc.Treasury()
	assert.Equal(t, "ops", tr.ID)
	assert.Equal(t, "vault-ops", tr.VaultPrincipal)
	assert.True(t, tr.TestMode)
	assert.Equal(t, []string{"alice"}, tr.Admins)
}
