package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rustyeddy/treasury/ledger/sim"
	"github.com/rustyeddy/treasury/store"
	"github.com/rustyeddy/treasury/token"
	"github.com/rustyeddy/treasury/vault"
)

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

func (e *rpcErrorBody) dataCode(t *testing.T) string {
	t.Helper()
	var d struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &d))
	return d.Code
}

func call(t *testing.T, url, method string, params any) rpcResponse {
	t.Helper()

	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// newTestServer stands up the full stack behind the bridge: sqlite store,
// one test-mode treasury and its seeded simulator.
func newTestServer(t *testing.T) string {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "treasury.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.CreateTreasury(context.Background(), vault.Treasury{
		ID:             "ops",
		Name:           "Operations",
		VaultPrincipal: "vault-ops",
		TestMode:       true,
		Admins:         []string{"alice"},
	}))

	gw := vault.NewGateways(nil, 10, func(id string, l *sim.Ledger) {
		l.SeedBalance("vault-ops", 100000)
	})
	svc, err := vault.New(st, gw, vault.DefaultPolicy(), zap.NewNop())
	require.NoError(t, err)

	bridge := NewServer(svc, token.CKBTC, zap.NewNop()).Bridge()
	ts := httptest.NewServer(bridge)
	t.Cleanup(func() {
		ts.Close()
		bridge.Close()
	})
	return ts.URL
}

func TestVaultMethodsEndToEnd(t *testing.T) {
	url := newTestServer(t)

	// Reconcile the seeded ledger first.
	resp := call(t, url, "vault.refresh", map[string]any{"treasury_id": "ops"})
	require.Nil(t, resp.Error)
	var ref refreshResult
	require.NoError(t, json.Unmarshal(resp.Result, &ref))
	assert.Equal(t, int64(100000), ref.Balance)
	assert.Equal(t, "0.00100000", ref.BalanceDecimal)
	assert.Equal(t, "synced", ref.State)

	resp = call(t, url, "vault.get_balance", map[string]any{"treasury_id": "ops"})
	require.Nil(t, resp.Error)
	var bal balanceResult
	require.NoError(t, json.Unmarshal(resp.Result, &bal))
	assert.Equal(t, "vault-ops", bal.PrincipalID)
	assert.Equal(t, int64(100000), bal.Amount)
	require.NotNil(t, bal.Available)
	assert.Equal(t, int64(100000), *bal.Available)

	// A decimal display amount: 0.0000025 ckBTC is 250 units.
	resp = call(t, url, "vault.transfer", map[string]any{
		"treasury_id":  "ops",
		"caller":       "alice",
		"to_principal": "bob",
		"amount":       "0.0000025",
		"memo":         "invoice 7",
	})
	require.Nil(t, resp.Error)
	var tr transferResult
	require.NoError(t, json.Unmarshal(resp.Result, &tr))
	assert.Equal(t, uint64(1), tr.TransactionID)
	assert.Equal(t, int64(250), tr.Amount)
	assert.Equal(t, "0.00000250", tr.AmountDecimal)
	assert.Equal(t, int64(10), tr.Fee)
	assert.NotEmpty(t, tr.Ref)

	// Raw smallest units work too.
	resp = call(t, url, "vault.transfer", map[string]any{
		"treasury_id":  "ops",
		"caller":       "alice",
		"to_principal": "bob",
		"amount":       300,
	})
	require.Nil(t, resp.Error)

	// Pending transfers narrow what is available; the cached balance holds.
	resp = call(t, url, "vault.get_balance", map[string]any{"treasury_id": "ops"})
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, &bal))
	assert.Equal(t, int64(100000), bal.Amount)
	require.NotNil(t, bal.Available)
	assert.Equal(t, int64(99430), *bal.Available)

	resp = call(t, url, "vault.get_transactions", map[string]any{"treasury_id": "ops"})
	require.Nil(t, resp.Error)
	var txs transactionsResult
	require.NoError(t, json.Unmarshal(resp.Result, &txs))
	require.Len(t, txs.Transactions, 2)
	assert.Equal(t, uint64(2), txs.Transactions[0].ID, "newest first")
	assert.Equal(t, "pending", txs.Transactions[0].Status)
	assert.Equal(t, "invoice 7", txs.Transactions[1].Memo)

	resp = call(t, url, "vault.get_status", nil)
	require.Nil(t, resp.Error)
	var status statusResult
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	assert.Equal(t, "ckBTC", status.Token)
	require.Len(t, status.Treasuries, 1)
	assert.Equal(t, 2, status.Treasuries[0].Pending)
	assert.Equal(t, int64(100000), status.TotalBalance)
	assert.Equal(t, int64(99430), status.TotalAvailable)

	// Refresh settles both transfers against the simulated ledger.
	resp = call(t, url, "vault.refresh", map[string]any{"treasury_id": "ops"})
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, &ref))
	assert.Equal(t, 2, ref.Promoted)
	assert.Equal(t, int64(99430), ref.Balance)

	resp = call(t, url, "vault.get_balance", map[string]any{"treasury_id": "ops", "principal_id": "bob"})
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, &bal))
	assert.Equal(t, int64(-550), bal.Amount, "payouts debit the recipient's claim")
	assert.Nil(t, bal.Available)
}

func TestRPCErrorCodes(t *testing.T) {
	url := newTestServer(t)

	cases := []struct {
		name     string
		method   string
		params   map[string]any
		wantNum  int
		wantCode string
	}{
		{"unknown treasury", "vault.get_balance",
			map[string]any{"treasury_id": "ghost"}, -32001, "NOT_FOUND"},
		{"unauthorized caller", "vault.transfer",
			map[string]any{"treasury_id": "ops", "caller": "mallory", "to_principal": "bob", "amount": 100},
			-32003, "UNAUTHORIZED"},
		{"excess precision", "vault.transfer",
			map[string]any{"treasury_id": "ops", "caller": "alice", "to_principal": "bob", "amount": "0.000000001"},
			-32004, "INVALID_AMOUNT"},
		{"fractional units", "vault.transfer",
			map[string]any{"treasury_id": "ops", "caller": "alice", "to_principal": "bob", "amount": 0.5},
			-32004, "INVALID_AMOUNT"},
		{"missing amount", "vault.transfer",
			map[string]any{"treasury_id": "ops", "caller": "alice", "to_principal": "bob"},
			-32004, "INVALID_AMOUNT"},
		{"insufficient funds", "vault.transfer",
			map[string]any{"treasury_id": "ops", "caller": "alice", "to_principal": "bob", "amount": 10000000},
			-32006, "INSUFFICIENT_FUNDS"},
		{"refresh unknown treasury", "vault.refresh",
			map[string]any{"treasury_id": "ghost"}, -32001, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, url, tc.method, tc.params)
			require.NotNil(t, resp.Error, "expected an error response")
			assert.Equal(t, tc.wantNum, resp.Error.Code)
			assert.Equal(t, tc.wantCode, resp.Error.dataCode(t))
		})
	}
}
