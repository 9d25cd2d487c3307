package vault

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/treasury/id"
	"github.com/rustyeddy/treasury/ledger"
)

// Refresh reconciles one treasury against the ledger index. Pages are pulled
// ascending from the stored cursor and each page is durably merged before
// the next fetch, so an abort at any point leaves the cursor at the last
// merged page and a later run resumes exactly there. Refresh is caller
// driven; the core never schedules one on its own.
func (s *Service) Refresh(ctx context.Context, treasuryID string) (RefreshSummary, error) {
	if !s.locks.acquire(treasuryID) {
		return RefreshSummary{}, fmt.Errorf("refresh %q: %w", treasuryID, ErrBusy)
	}
	defer s.locks.release(treasuryID)

	t, err := s.store.GetTreasury(ctx, treasuryID)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("refresh: %w", err)
	}
	gw := s.gw.For(&t)

	sum := RefreshSummary{TreasuryID: treasuryID, Ref: id.New()}
	cursor := t.Cursor
	drained := false

	for page := 0; page < s.policy.MaxPages; page++ {
		p, err := gw.ListTransactions(ctx, ledger.ListRequest{
			Principal: t.VaultPrincipal,
			Since:     cursor,
			Limit:     s.policy.PageLimit,
		})
		if err != nil {
			return sum, fmt.Errorf("refresh %q: %w: %w", treasuryID, ErrRefreshFailed, err)
		}
		if len(p.Records) == 0 {
			drained = true
			break
		}

		recs := make([]Transaction, len(p.Records))
		now := s.now().UTC()
		for i, r := range p.Records {
			recs[i] = FromRecord(r, now)
		}

		ins, prom, err := s.store.IngestRecords(ctx, treasuryID, recs, p.Cursor)
		if err != nil {
			return sum, fmt.Errorf("refresh %q: %w: %w", treasuryID, ErrRefreshFailed, err)
		}
		sum.NewRecords += ins
		sum.Promoted += prom
		cursor = p.Cursor

		if len(p.Records) < s.policy.PageLimit {
			drained = true
			break
		}
	}
	sum.Cursor = cursor

	// Outbound transfers the index never confirmed within the staleness
	// window did not land. Fail them instead of silently retrying; retrying
	// an ambiguous submit is how double-spends happen.
	pending, err := s.store.ListPending(ctx, treasuryID)
	if err != nil {
		return sum, fmt.Errorf("refresh %q: %w: %w", treasuryID, ErrRefreshFailed, err)
	}
	cutoff := s.now().Add(-s.policy.PendingTimeout)
	for _, p := range pending {
		if p.RecordedAt.After(cutoff) {
			continue
		}
		if err := s.store.FailPending(ctx, treasuryID, p.TxID); err != nil {
			return sum, fmt.Errorf("refresh %q: %w: %w", treasuryID, ErrRefreshFailed, err)
		}
		sum.Failed++
		s.log.Warn("pending transfer declared failed",
			zap.String("treasury", treasuryID),
			zap.Uint64("tx_id", p.TxID),
			zap.Int64("amount", p.Amount),
			zap.Time("recorded_at", p.RecordedAt),
		)
	}

	if !drained {
		// Page budget spent with records remaining. The cursor is durable
		// and the treasury is already marked stale; the balance snapshot
		// would not be as-of this cursor, so it waits for the next run.
		sum.Balance = t.Balance
		sum.State = SyncStale
		s.log.Info("refresh paused at page budget",
			zap.String("treasury", treasuryID),
			zap.String("ref", sum.Ref),
			zap.Uint64("cursor", cursor),
			zap.Int("new_records", sum.NewRecords),
		)
		return sum, nil
	}

	balance, err := gw.QueryBalance(ctx, t.VaultPrincipal)
	if err != nil {
		return sum, fmt.Errorf("refresh %q: %w: %w", treasuryID, ErrRefreshFailed, err)
	}
	if err := s.store.ApplyBalance(ctx, treasuryID, balance, cursor); err != nil {
		return sum, fmt.Errorf("refresh %q: %w: %w", treasuryID, ErrRefreshFailed, err)
	}
	sum.Balance = balance
	sum.State = SyncSynced

	s.log.Info("refresh complete",
		zap.String("treasury", treasuryID),
		zap.String("ref", sum.Ref),
		zap.Int("new_records", sum.NewRecords),
		zap.Int("promoted", sum.Promoted),
		zap.Int("failed", sum.Failed),
		zap.Uint64("cursor", cursor),
		zap.Int64("balance", balance),
	)
	return sum, nil
}
