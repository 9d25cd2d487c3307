// Package vault is the treasury core: a durable reconciled view of ledger
// accounts, transfer authorization against that view, and the five
// operations a hosting runtime exposes. All ledger traffic goes through
// ledger.Gateway; all durable state through Store.
package vault

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Service struct {
	store  Store
	gw     *Gateways
	policy Policy
	locks  *lockTable
	log    *zap.Logger
	now    func() time.Time
}

func New(store Store, gw *Gateways, policy Policy, log *zap.Logger) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		gw:     gw,
		policy: policy,
		locks:  newLockTable(),
		log:    log,
		now:    time.Now,
	}, nil
}

// Balance answers from the reconciled store, never the ledger. An empty
// principal means the treasury's own vault principal; any other principal
// reads the claim projection, where unknown simply means zero.
func (s *Service) Balance(ctx context.Context, treasuryID, principal string) (BalanceView, error) {
	t, err := s.store.GetTreasury(ctx, treasuryID)
	if err != nil {
		return BalanceView{}, fmt.Errorf("balance: %w", err)
	}

	if principal == "" || principal == t.VaultPrincipal {
		pending, err := s.store.PendingTotal(ctx, treasuryID)
		if err != nil {
			return BalanceView{}, fmt.Errorf("balance: %w", err)
		}
		return BalanceView{
			TreasuryID: treasuryID,
			Principal:  t.VaultPrincipal,
			Amount:     t.Balance,
			Available:  t.Balance - pending,
			Vault:      true,
		}, nil
	}

	amount, err := s.store.PrincipalBalance(ctx, treasuryID, principal)
	if err != nil {
		return BalanceView{}, fmt.Errorf("balance: %w", err)
	}
	return BalanceView{
		TreasuryID: treasuryID,
		Principal:  principal,
		Amount:     amount,
		Available:  amount,
	}, nil
}

// Transactions lists stored history newest-first. Empty principal means all
// records; limit 0 falls back to the policy page size.
func (s *Service) Transactions(ctx context.Context, treasuryID, principal string, limit int) ([]Transaction, error) {
	if _, err := s.store.GetTreasury(ctx, treasuryID); err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	if limit <= 0 {
		limit = s.policy.PageLimit
	}
	recs, err := s.store.ListTransactions(ctx, treasuryID, principal, limit)
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	return recs, nil
}

// Status is the vault-wide read-only snapshot.
func (s *Service) Status(ctx context.Context) (VaultStatus, error) {
	treasuries, err := s.store.ListTreasuries(ctx)
	if err != nil {
		return VaultStatus{}, fmt.Errorf("status: %w", err)
	}

	out := VaultStatus{}
	for _, t := range treasuries {
		pending, err := s.store.ListPending(ctx, t.ID)
		if err != nil {
			return VaultStatus{}, fmt.Errorf("status: %w", err)
		}
		total, err := s.store.PendingTotal(ctx, t.ID)
		if err != nil {
			return VaultStatus{}, fmt.Errorf("status: %w", err)
		}

		ts := TreasuryStatus{
			ID:        t.ID,
			Name:      t.Name,
			TestMode:  t.TestMode,
			Balance:   t.Balance,
			Available: t.Balance - total,
			Cursor:    t.Cursor,
			State:     s.syncState(&t),
			Pending:   len(pending),
		}
		out.Treasuries = append(out.Treasuries, ts)
		out.TotalBalance += ts.Balance
		out.TotalAvailable += ts.Available
	}
	return out, nil
}

func (s *Service) syncState(t *Treasury) SyncState {
	switch {
	case s.locks.busy(t.ID):
		return SyncSyncing
	case t.Stale:
		return SyncStale
	case t.Cursor == 0 && t.Balance == 0:
		return SyncCreated
	default:
		return SyncSynced
	}
}
