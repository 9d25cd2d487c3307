package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/treasury/config"
	"github.com/rustyeddy/treasury/ledger"
	"github.com/rustyeddy/treasury/ledger/icrc"
	"github.com/rustyeddy/treasury/ledger/sim"
	"github.com/rustyeddy/treasury/logx"
	"github.com/rustyeddy/treasury/store"
	"github.com/rustyeddy/treasury/vault"
)

// app bundles everything a command needs once the config is loaded.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store vault.Store
	vault *vault.Service
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logx.New(logx.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	policy, err := cfg.Policy.Policy()
	if err != nil {
		st.Close()
		return nil, err
	}

	gw, err := buildGateways(cfg, policy, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	svc, err := vault.New(st, gw, policy, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: st, vault: svc}, nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.log.Sync()
}

func openStore(cfg *config.Config) (vault.Store, error) {
	switch cfg.Store.Type {
	case "bolt":
		return store.NewBolt(cfg.Store.Path)
	default:
		return store.NewSQLite(cfg.Store.Path)
	}
}

// buildGateways connects the real ledger client only when some treasury
// actually needs it, so a pure test-mode config never requires ledger URLs.
func buildGateways(cfg *config.Config, policy vault.Policy, log *zap.Logger) (*vault.Gateways, error) {
	var real ledger.Gateway
	for _, tc := range cfg.Treasuries {
		if !tc.TestMode {
			timeout, err := cfg.Ledger.ParseTimeout()
			if err != nil {
				return nil, err
			}
			real = icrc.NewClient(cfg.Ledger.URL, cfg.Ledger.IndexURL, cfg.Ledger.Token, timeout)
			break
		}
	}

	seeds := make(map[string][]config.SeedConfig, len(cfg.Treasuries))
	for _, tc := range cfg.Treasuries {
		if tc.TestMode && len(tc.Seed) > 0 {
			seeds[tc.ID] = tc.Seed
		}
	}

	seed := func(id string, l *sim.Ledger) {
		for _, s := range seeds[id] {
			// Entries were validated at config load; a failure here means
			// the simulator ran out of seeded funds mid-list.
			if _, err := l.Seed(ledger.Kind(s.Kind), s.From, s.To, s.Amount); err != nil {
				log.Warn("seed entry skipped",
					zap.String("treasury", id),
					zap.String("kind", s.Kind),
					zap.Error(err))
			}
		}
	}
	return vault.NewGateways(real, policy.DefaultFee, seed), nil
}

// refreshSweep reconciles every treasury, skipping ones already busy.
func refreshSweep(ctx context.Context, a *app) {
	treasuries, err := a.store.ListTreasuries(ctx)
	if err != nil {
		a.log.Error("refresh sweep: list treasuries", zap.Error(err))
		return
	}
	for _, t := range treasuries {
		sum, err := a.vault.Refresh(ctx, t.ID)
		if err != nil {
			if errors.Is(err, vault.ErrBusy) {
				continue
			}
			a.log.Warn("refresh sweep", zap.String("treasury", t.ID), zap.Error(err))
			continue
		}
		if sum.NewRecords > 0 || sum.Promoted > 0 || sum.Failed > 0 {
			a.log.Info("refresh sweep",
				zap.String("treasury", t.ID),
				zap.Int("new", sum.NewRecords),
				zap.Int("promoted", sum.Promoted),
				zap.Int("failed", sum.Failed))
		}
	}
}
