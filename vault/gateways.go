package vault

import (
	"sync"

	"github.com/rustyeddy/treasury/ledger"
	"github.com/rustyeddy/treasury/ledger/sim"
)

// Gateways fixes which gateway each treasury talks to. Real treasuries share
// the one adapter; every test-mode treasury gets its own simulator, created
// on first use and kept for the life of the process so seeded state survives
// across calls. The TestMode flag is consulted once, here; nothing
// downstream branches on mode again.
type Gateways struct {
	real   ledger.Gateway
	simFee int64
	seed   func(treasuryID string, l *sim.Ledger)

	mu   sync.Mutex
	sims map[string]*sim.Ledger
}

// NewGateways wires the resolver. real may be nil when every configured
// treasury runs in test mode. seed, if set, runs once per simulator right
// after creation.
func NewGateways(real ledger.Gateway, simFee int64, seed func(string, *sim.Ledger)) *Gateways {
	return &Gateways{
		real:   real,
		simFee: simFee,
		seed:   seed,
		sims:   make(map[string]*sim.Ledger),
	}
}

func (g *Gateways) For(t *Treasury) ledger.Gateway {
	if !t.TestMode {
		return g.real
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.sims[t.ID]
	if !ok {
		l = sim.New(g.simFee)
		if g.seed != nil {
			g.seed(t.ID, l)
		}
		g.sims[t.ID] = l
	}
	return l
}
