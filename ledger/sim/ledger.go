package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/treasury/ledger"
)

// Ledger is an in-memory ledger.Gateway for test-mode treasuries. Ids are
// sequential from 1 and timestamps come from an injectable clock, so a
// seeded ledger replays identically run after run. Synthetic balances may go
// negative; nothing here is real value.
type Ledger struct {
	mu       sync.Mutex
	fee      int64
	now      func() time.Time
	balances map[string]int64
	log      []ledger.Record
	nextID   uint64
}

func New(fee int64) *Ledger {
	return &Ledger{
		fee:      fee,
		now:      time.Now,
		balances: make(map[string]int64),
		nextID:   1,
	}
}

// SetClock replaces the timestamp source. Tests inject a fixed clock.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Ledger) QueryBalance(ctx context.Context, principal string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[principal], nil
}

func (l *Ledger) TransferFee(ctx context.Context) (int64, error) {
	return l.fee, nil
}

// SubmitTransfer accepts any syntactically valid request. The movement is
// applied immediately, so the record is visible to ListTransactions as soon
// as the call returns.
func (l *Ledger) SubmitTransfer(ctx context.Context, req ledger.TransferRequest) (uint64, error) {
	if req.From == "" || req.To == "" {
		return 0, fmt.Errorf("submit transfer: %w: missing principal", ledger.ErrRejected)
	}
	if req.Amount <= 0 {
		return 0, fmt.Errorf("submit transfer: %w: amount %d", ledger.ErrRejected, req.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[req.From] -= req.Amount + req.Fee
	l.balances[req.To] += req.Amount

	rec := ledger.Record{
		ID:        l.nextID,
		Kind:      ledger.KindTransfer,
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		Fee:       req.Fee,
		Memo:      req.Memo,
		Timestamp: l.now(),
	}
	l.log = append(l.log, rec)
	l.nextID++

	return rec.ID, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, req ledger.ListRequest) (ledger.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	page := ledger.Page{Cursor: req.Since}
	for _, rec := range l.log {
		if rec.ID <= req.Since || !touches(rec, req.Principal) {
			continue
		}
		page.Records = append(page.Records, rec)
		page.Cursor = rec.ID
		if req.Limit > 0 && len(page.Records) == req.Limit {
			break
		}
	}
	return page, nil
}

// SeedBalance sets a principal's synthetic balance outright.
func (l *Ledger) SeedBalance(principal string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[principal] = amount
}

// Seed appends a synthetic record with the next sequential id and applies
// its balance effect: mint credits To, burn debits From, transfer moves
// From to To. Fixtures and the config seed list go through here.
func (l *Ledger) Seed(kind ledger.Kind, from, to string, amount int64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch kind {
	case ledger.KindMint:
		if to == "" {
			return 0, fmt.Errorf("seed mint: missing to")
		}
		from = ""
		l.balances[to] += amount
	case ledger.KindBurn:
		if from == "" {
			return 0, fmt.Errorf("seed burn: missing from")
		}
		to = ""
		l.balances[from] -= amount
	case ledger.KindTransfer:
		if from == "" || to == "" {
			return 0, fmt.Errorf("seed transfer: missing principal")
		}
		l.balances[from] -= amount
		l.balances[to] += amount
	default:
		return 0, fmt.Errorf("seed: unknown kind %q", kind)
	}

	rec := ledger.Record{
		ID:        l.nextID,
		Kind:      kind,
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: l.now(),
	}
	l.log = append(l.log, rec)
	l.nextID++

	return rec.ID, nil
}

func touches(rec ledger.Record, principal string) bool {
	return rec.From == principal || rec.To == principal
}
