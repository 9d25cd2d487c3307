package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rustyeddy/treasury/ledger"
)

// memStore is an in-memory Store honoring the same contract as the real
// backends, with injectable failures for the paths the service must survive.
type memStore struct {
	mu         sync.Mutex
	treasuries map[string]Treasury
	txs        map[string]map[uint64]Transaction
	claims     map[string]map[string]int64

	pendErr error
}

func newMemStore() *memStore {
	return &memStore{
		treasuries: make(map[string]Treasury),
		txs:        make(map[string]map[uint64]Transaction),
		claims:     make(map[string]map[string]int64),
	}
}

func (m *memStore) CreateTreasury(ctx context.Context, t Treasury) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.treasuries[t.ID]; ok {
		return fmt.Errorf("create: %w: %q", ErrExists, t.ID)
	}
	m.treasuries[t.ID] = t
	m.txs[t.ID] = make(map[uint64]Transaction)
	m.claims[t.ID] = make(map[string]int64)
	return nil
}

func (m *memStore) GetTreasury(ctx context.Context, id string) (Treasury, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treasuries[id]
	if !ok {
		return Treasury{}, fmt.Errorf("get: %w: %q", ErrNotFound, id)
	}
	return t, nil
}

func (m *memStore) ListTreasuries(ctx context.Context) ([]Treasury, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Treasury, 0, len(m.treasuries))
	for _, t := range m.treasuries {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treasuries[id]
	if !ok {
		return fmt.Errorf("update admins: %w: %q", ErrNotFound, id)
	}
	t.Admins = admins
	m.treasuries[id] = t
	return nil
}

func (m *memStore) ApplyBalance(ctx context.Context, id string, balance int64, cursor uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treasuries[id]
	if !ok {
		return fmt.Errorf("apply balance: %w: %q", ErrNotFound, id)
	}
	if cursor < t.Cursor {
		return nil
	}
	t.Balance = balance
	t.Cursor = cursor
	t.Stale = false
	m.treasuries[id] = t
	return nil
}

func (m *memStore) IngestRecords(ctx context.Context, id string, recs []Transaction, cursor uint64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treasuries[id]
	if !ok {
		return 0, 0, fmt.Errorf("ingest: %w: %q", ErrNotFound, id)
	}
	var inserted, promoted int
	for _, rec := range recs {
		existing, ok := m.txs[id][rec.TxID]
		if ok {
			if existing.Status == TxPending && rec.Status == TxConfirmed {
				rec.RecordedAt = existing.RecordedAt
				m.txs[id][rec.TxID] = rec
				promoted++
			}
			continue
		}
		m.txs[id][rec.TxID] = rec
		m.applyClaim(id, t.VaultPrincipal, rec, 1)
		inserted++
	}
	if cursor > t.Cursor {
		t.Cursor = cursor
		t.Stale = true
		m.treasuries[id] = t
	}
	return inserted, promoted, nil
}

func (m *memStore) RecordPendingOutbound(ctx context.Context, id string, rec Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendErr != nil {
		return m.pendErr
	}
	t, ok := m.treasuries[id]
	if !ok {
		return fmt.Errorf("record pending: %w: %q", ErrNotFound, id)
	}
	rec.Status = TxPending
	m.txs[id][rec.TxID] = rec
	m.applyClaim(id, t.VaultPrincipal, rec, 1)
	t.Stale = true
	m.treasuries[id] = t
	return nil
}

func (m *memStore) FailPending(ctx context.Context, id string, txID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treasuries[id]
	if !ok {
		return fmt.Errorf("fail pending: %w: %q", ErrNotFound, id)
	}
	rec, ok := m.txs[id][txID]
	if !ok || rec.Status != TxPending {
		return fmt.Errorf("fail pending: %w: no pending tx %d in %q", ErrNotFound, txID, id)
	}
	rec.Status = TxFailed
	m.txs[id][txID] = rec
	m.applyClaim(id, t.VaultPrincipal, rec, -1)
	return nil
}

func (m *memStore) ListTransactions(ctx context.Context, id, principal string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.treasuries[id]; !ok {
		return nil, fmt.Errorf("list: %w: %q", ErrNotFound, id)
	}
	var out []Transaction
	for _, rec := range m.txs[id] {
		if principal != "" && rec.From != principal && rec.To != principal {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID > out[j].TxID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListPending(ctx context.Context, id string) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, rec := range m.txs[id] {
		if rec.Status == TxPending {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out, nil
}

func (m *memStore) PendingTotal(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, rec := range m.txs[id] {
		if rec.Status == TxPending {
			total += rec.Amount + rec.Fee
		}
	}
	return total, nil
}

func (m *memStore) PrincipalBalance(ctx context.Context, id, principal string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims[id][principal], nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) applyClaim(id, vaultPrincipal string, rec Transaction, sign int64) {
	principal, delta := rec.ClaimDelta(vaultPrincipal)
	if principal == "" {
		return
	}
	m.claims[id][principal] += sign * delta
}

// record reads one stored row directly, bypassing the interface.
func (m *memStore) record(id string, txID uint64) (Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.txs[id][txID]
	return rec, ok
}

type pageScript struct {
	page ledger.Page
	err  error
}

// fakeGateway scripts responses and records every call it receives. Pages
// are consumed in order; once exhausted, lists return an empty page at the
// request cursor, the way a drained index does.
type fakeGateway struct {
	mu sync.Mutex

	balance    int64
	balanceErr error
	fee        int64
	feeErr     error
	submitID   uint64
	submitErr  error
	pages      []pageScript

	balanceCalls int
	listCalls    []ledger.ListRequest
	submitted    []ledger.TransferRequest
}

func (g *fakeGateway) QueryBalance(ctx context.Context, principal string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balanceCalls++
	if g.balanceErr != nil {
		return 0, g.balanceErr
	}
	return g.balance, nil
}

func (g *fakeGateway) TransferFee(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.feeErr != nil {
		return 0, g.feeErr
	}
	return g.fee, nil
}

func (g *fakeGateway) SubmitTransfer(ctx context.Context, req ledger.TransferRequest) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, req)
	if g.submitErr != nil {
		return 0, g.submitErr
	}
	return g.submitID, nil
}

func (g *fakeGateway) ListTransactions(ctx context.Context, req ledger.ListRequest) (ledger.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls = append(g.listCalls, req)
	if len(g.pages) == 0 {
		return ledger.Page{Cursor: req.Since}, nil
	}
	next := g.pages[0]
	g.pages = g.pages[1:]
	if next.err != nil {
		return ledger.Page{}, next.err
	}
	return next.page, nil
}

func (g *fakeGateway) script(pages ...pageScript) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pages = append(g.pages, pages...)
}

// forbiddenGateway fails the test on any use. It stands in for the real
// adapter where only simulators should ever be reached.
type forbiddenGateway struct{ t *testing.T }

func (g forbiddenGateway) QueryBalance(ctx context.Context, principal string) (int64, error) {
	g.t.Fatalf("real gateway reached: QueryBalance(%q)", principal)
	return 0, nil
}

func (g forbiddenGateway) TransferFee(ctx context.Context) (int64, error) {
	g.t.Fatal("real gateway reached: TransferFee")
	return 0, nil
}

func (g forbiddenGateway) SubmitTransfer(ctx context.Context, req ledger.TransferRequest) (uint64, error) {
	g.t.Fatalf("real gateway reached: SubmitTransfer(%+v)", req)
	return 0, nil
}

func (g forbiddenGateway) ListTransactions(ctx context.Context, req ledger.ListRequest) (ledger.Page, error) {
	g.t.Fatalf("real gateway reached: ListTransactions(%+v)", req)
	return ledger.Page{}, nil
}

func newTestService(t *testing.T, st Store, gw ledger.Gateway, policy Policy) *Service {
	t.Helper()
	svc, err := New(st, NewGateways(gw, policy.DefaultFee, nil), policy, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func seedTreasury(t *testing.T, st Store, id string, balance int64, cursor uint64) Treasury {
	t.Helper()
	tr := Treasury{
		ID:             id,
		Name:           "Treasury " + id,
		VaultPrincipal: "vault-" + id,
		Admins:         []string{"alice"},
		Balance:        balance,
		Cursor:         cursor,
	}
	require.NoError(t, st.CreateTreasury(context.Background(), tr))
	return tr
}

func deposit(id uint64, from, to string, amount int64) ledger.Record {
	return ledger.Record{
		ID:     id,
		Kind:   ledger.KindTransfer,
		From:   from,
		To:     to,
		Amount: amount,
		Fee:    10,
	}
}
