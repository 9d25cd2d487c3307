package vault

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/treasury/id"
	"github.com/rustyeddy/treasury/ledger"
)

// Transfer authorizes and submits one outbound payment. The funds check is
// optimistic (cached balance minus everything already pending); the ledger
// stays authoritative. On success the transfer is recorded pending and the
// next refresh promotes or fails it. Transfer itself never refreshes.
func (s *Service) Transfer(ctx context.Context, treasuryID, requester, to string, amount int64, memo string) (Receipt, error) {
	if !s.locks.acquire(treasuryID) {
		return Receipt{}, fmt.Errorf("transfer %q: %w", treasuryID, ErrBusy)
	}
	defer s.locks.release(treasuryID)

	t, err := s.store.GetTreasury(ctx, treasuryID)
	if err != nil {
		return Receipt{}, fmt.Errorf("transfer: %w", err)
	}
	if err := authorizeTransfer(&t, requester, to, amount); err != nil {
		return Receipt{}, err
	}

	gw := s.gw.For(&t)

	fee, err := gw.TransferFee(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrUnavailable) {
			return Receipt{}, fmt.Errorf("transfer %q: %w", treasuryID, err)
		}
		// The fee lookup is a read; degrading it to the configured default
		// is safe in a way that degrading the submit never is.
		fee = s.policy.DefaultFee
		s.log.Warn("fee query unavailable, using default",
			zap.String("treasury", treasuryID), zap.Int64("fee", fee))
	}

	pending, err := s.store.PendingTotal(ctx, treasuryID)
	if err != nil {
		return Receipt{}, fmt.Errorf("transfer %q: %w", treasuryID, err)
	}
	available := t.Balance - pending
	if amount+fee > available {
		return Receipt{}, fmt.Errorf("transfer %q: %w: need %d, available %d",
			treasuryID, ledger.ErrInsufficientFunds, amount+fee, available)
	}

	ref := id.New()
	txID, err := gw.SubmitTransfer(ctx, ledger.TransferRequest{
		From:      t.VaultPrincipal,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Memo:      memo,
		ClientRef: ref,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrRejected) {
			return Receipt{}, fmt.Errorf("transfer %q: %w", treasuryID, err)
		}
		// Ambiguous: the transfer may have landed. Record nothing, retry
		// nothing. The next refresh discovers the true outcome.
		s.log.Error("transfer outcome ambiguous",
			zap.String("treasury", treasuryID),
			zap.String("ref", ref),
			zap.String("to", to),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return Receipt{}, fmt.Errorf("transfer %q: %w: %w", treasuryID, ErrTransferFailed, err)
	}

	now := s.now().UTC()
	rec := Transaction{
		TxID:       txID,
		Kind:       ledger.KindTransfer,
		From:       t.VaultPrincipal,
		To:         to,
		Amount:     amount,
		Fee:        fee,
		Memo:       memo,
		Timestamp:  now,
		Status:     TxPending,
		RecordedAt: now,
	}
	if err := s.store.RecordPendingOutbound(ctx, treasuryID, rec); err != nil {
		// The ledger accepted tx; only the local pending row is missing. A
		// later refresh ingests it from the index as a fresh record, so
		// nothing is lost, but the available view lags until then.
		s.log.Error("accepted transfer not recorded locally",
			zap.String("treasury", treasuryID),
			zap.Uint64("tx_id", txID),
			zap.String("ref", ref),
			zap.Error(err),
		)
		return Receipt{}, fmt.Errorf("transfer %q: record pending: %w", treasuryID, err)
	}

	s.log.Info("transfer submitted",
		zap.String("treasury", treasuryID),
		zap.Uint64("tx_id", txID),
		zap.String("ref", ref),
		zap.String("to", to),
		zap.Int64("amount", amount),
		zap.Int64("fee", fee),
	)
	return Receipt{
		TreasuryID: treasuryID,
		TxID:       txID,
		To:         to,
		Amount:     amount,
		Fee:        fee,
		Ref:        ref,
	}, nil
}
