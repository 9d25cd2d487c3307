package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/treasury/token"
	"github.com/rustyeddy/treasury/vault"
)

// Config represents the complete treasury service configuration
type Config struct {
	Log        LogConfig        `json:"log" yaml:"log"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Ledger     LedgerConfig     `json:"ledger,omitempty" yaml:"ledger,omitempty"`
	Token      TokenConfig      `json:"token,omitempty" yaml:"token,omitempty"`
	Policy     PolicyConfig     `json:"policy,omitempty" yaml:"policy,omitempty"`
	Server     ServerConfig     `json:"server,omitempty" yaml:"server,omitempty"`
	Operator   string           `json:"operator,omitempty" yaml:"operator,omitempty"`
	Treasuries []TreasuryConfig `json:"treasuries" yaml:"treasuries"`
}

// LogConfig controls structured logging output
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// StoreConfig selects the durable backend
type StoreConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite" or "bolt"
	Path string `json:"path" yaml:"path"`
}

// LedgerConfig points at the real ledger and index endpoints. Only required
// when at least one treasury runs outside test mode.
type LedgerConfig struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	IndexURL string `json:"index_url,omitempty" yaml:"index_url,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "30s"
}

// ParseTimeout converts the timeout string to time.Duration
func (lc LedgerConfig) ParseTimeout() (time.Duration, error) {
	if lc.Timeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(lc.Timeout)
}

// TokenConfig overrides the token the vault accounts in
type TokenConfig struct {
	Symbol   string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Decimals int    `json:"decimals,omitempty" yaml:"decimals,omitempty"`
}

// PolicyConfig carries the reconciliation and transfer knobs
type PolicyConfig struct {
	PageLimit      int    `json:"page_limit,omitempty" yaml:"page_limit,omitempty"`
	MaxPages       int    `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
	PendingTimeout string `json:"pending_timeout,omitempty" yaml:"pending_timeout,omitempty"` // e.g. "10m"
	DefaultFee     int64  `json:"default_fee,omitempty" yaml:"default_fee,omitempty"`
}

// Policy merges the configured knobs over the operational defaults.
func (pc PolicyConfig) Policy() (vault.Policy, error) {
	p := vault.DefaultPolicy()
	if pc.PageLimit != 0 {
		p.PageLimit = pc.PageLimit
	}
	if pc.MaxPages != 0 {
		p.MaxPages = pc.MaxPages
	}
	if pc.PendingTimeout != "" {
		d, err := time.ParseDuration(pc.PendingTimeout)
		if err != nil {
			return vault.Policy{}, fmt.Errorf("policy.pending_timeout: %w", err)
		}
		p.PendingTimeout = d
	}
	if pc.DefaultFee != 0 {
		p.DefaultFee = pc.DefaultFee
	}
	if err := p.Validate(); err != nil {
		return vault.Policy{}, err
	}
	return p, nil
}

// ServerConfig controls the serve command
type ServerConfig struct {
	Listen      string `json:"listen" yaml:"listen"`
	RefreshCron string `json:"refresh_cron,omitempty" yaml:"refresh_cron,omitempty"` // empty disables periodic refresh
}

// SeedConfig is one simulated ledger record applied when a test-mode
// treasury's simulator is created
type SeedConfig struct {
	Kind   string `json:"kind" yaml:"kind"` // "mint", "burn" or "transfer"
	From   string `json:"from,omitempty" yaml:"from,omitempty"`
	To     string `json:"to,omitempty" yaml:"to,omitempty"`
	Amount int64  `json:"amount" yaml:"amount"`
}

func (s SeedConfig) validate() error {
	if s.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", s.Amount)
	}
	switch s.Kind {
	case "mint":
		if s.To == "" {
			return fmt.Errorf("mint requires 'to'")
		}
	case "burn":
		if s.From == "" {
			return fmt.Errorf("burn requires 'from'")
		}
	case "transfer":
		if s.From == "" || s.To == "" {
			return fmt.Errorf("transfer requires 'from' and 'to'")
		}
	default:
		return fmt.Errorf("kind must be 'mint', 'burn' or 'transfer', got %q", s.Kind)
	}
	return nil
}

// TreasuryConfig declares one custody account
type TreasuryConfig struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	VaultPrincipal string       `json:"vault_principal" yaml:"vault_principal"`
	TestMode       bool         `json:"test_mode,omitempty" yaml:"test_mode,omitempty"`
	Admins         []string     `json:"admins" yaml:"admins"`
	Seed           []SeedConfig `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Treasury converts the declaration into the vault's type.
func (tc TreasuryConfig) Treasury() vault.Treasury {
	return vault.Treasury{
		ID:             tc.ID,
		Name:           tc.Name,
		VaultPrincipal: tc.VaultPrincipal,
		TestMode:       tc.TestMode,
		Admins:         append([]string(nil), tc.Admins...),
	}
}

// LoadFromFile loads configuration from a file (YAML with JSON fallback)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite", "bolt":
	case "":
		return fmt.Errorf("store.type is required")
	default:
		return fmt.Errorf("store.type must be 'sqlite' or 'bolt', got %q", c.Store.Type)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Token.Decimals < 0 || c.Token.Decimals > 18 {
		return fmt.Errorf("token.decimals must be between 0 and 18, got %d", c.Token.Decimals)
	}
	if _, err := c.Policy.Policy(); err != nil {
		return err
	}
	if _, err := c.Ledger.ParseTimeout(); err != nil {
		return fmt.Errorf("ledger.timeout: %w", err)
	}

	seen := make(map[string]bool)
	needsLedger := false
	for i := range c.Treasuries {
		tc := &c.Treasuries[i]
		if tc.ID == "" {
			return fmt.Errorf("treasuries[%d].id is required", i)
		}
		if seen[tc.ID] {
			return fmt.Errorf("duplicate treasury id %q", tc.ID)
		}
		seen[tc.ID] = true
		if tc.VaultPrincipal == "" {
			return fmt.Errorf("treasury %q: vault_principal is required", tc.ID)
		}
		if !tc.TestMode {
			needsLedger = true
			if len(tc.Seed) > 0 {
				return fmt.Errorf("treasury %q: seed entries require test_mode", tc.ID)
			}
		}
		for j, s := range tc.Seed {
			if err := s.validate(); err != nil {
				return fmt.Errorf("treasury %q: seed[%d]: %w", tc.ID, j, err)
			}
		}
	}
	if needsLedger && (c.Ledger.URL == "" || c.Ledger.IndexURL == "") {
		return fmt.Errorf("ledger.url and ledger.index_url are required when a treasury is not test_mode")
	}
	return nil
}

// Meta resolves the configured token over the ckBTC defaults.
func (c *Config) Meta() token.Meta {
	m := token.CKBTC
	if c.Token.Symbol != "" {
		m.Symbol = c.Token.Symbol
	}
	if c.Token.Decimals > 0 {
		m.Decimals = c.Token.Decimals
	}
	return m
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Type: "sqlite",
			Path: "./treasury.db",
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
	}
}
