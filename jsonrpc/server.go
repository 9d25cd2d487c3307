// Package jsonrpc exposes the vault operations as JSON-RPC 2.0 over HTTP.
// The caller field on mutating methods is the hosting runtime's already
// authenticated principal; this layer routes it through, it does not
// authenticate anyone itself.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"go.uber.org/zap"

	"github.com/rustyeddy/treasury/token"
	"github.com/rustyeddy/treasury/vault"
)

// Application error codes, one per stable vault code. The text code rides
// in the error data so clients can switch on it without number tables.
const (
	codeInternal          jrpc2.Code = -32000
	codeNotFound          jrpc2.Code = -32001
	codeAlreadyExists     jrpc2.Code = -32002
	codeUnauthorized      jrpc2.Code = -32003
	codeInvalidAmount     jrpc2.Code = -32004
	codeBusy              jrpc2.Code = -32005
	codeInsufficientFunds jrpc2.Code = -32006
	codeLedgerRejected    jrpc2.Code = -32007
	codeLedgerUnavailable jrpc2.Code = -32008
	codeRefreshFailed     jrpc2.Code = -32009
	codeTransferFailed    jrpc2.Code = -32010
)

var rpcCodes = map[string]jrpc2.Code{
	"NOT_FOUND":          codeNotFound,
	"ALREADY_EXISTS":     codeAlreadyExists,
	"UNAUTHORIZED":       codeUnauthorized,
	"INVALID_AMOUNT":     codeInvalidAmount,
	"BUSY":               codeBusy,
	"INSUFFICIENT_FUNDS": codeInsufficientFunds,
	"LEDGER_REJECTED":    codeLedgerRejected,
	"LEDGER_UNAVAILABLE": codeLedgerUnavailable,
	"REFRESH_FAILED":     codeRefreshFailed,
	"TRANSFER_FAILED":    codeTransferFailed,
}

type errorData struct {
	Code string `json:"code"`
}

func rpcError(err error) error {
	code := vault.Code(err)
	num, ok := rpcCodes[code]
	if !ok {
		num = codeInternal
	}
	return jrpc2.Errorf(num, "%s", err.Error()).WithData(errorData{Code: code})
}

type Server struct {
	vault *vault.Service
	meta  token.Meta
	log   *zap.Logger
}

func NewServer(svc *vault.Service, meta token.Meta, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{vault: svc, meta: meta, log: log}
}

// Methods is the jrpc2 handler map; Bridge wraps it for plain HTTP POST.
func (s *Server) Methods() handler.Map {
	return handler.Map{
		"vault.get_balance":      handler.New(s.getBalance),
		"vault.get_status":       handler.New(s.getStatus),
		"vault.get_transactions": handler.New(s.getTransactions),
		"vault.transfer":         handler.New(s.transfer),
		"vault.refresh":          handler.New(s.refresh),
	}
}

func (s *Server) Bridge() *jhttp.Bridge {
	b := jhttp.NewBridge(s.Methods(), nil)
	return &b
}

// --- vault.get_balance ---

type balanceParams struct {
	TreasuryID  string `json:"treasury_id"`
	PrincipalID string `json:"principal_id,omitempty"`
}

type balanceResult struct {
	TreasuryID       string  `json:"treasury_id"`
	PrincipalID      string  `json:"principal_id"`
	Amount           int64   `json:"amount"`
	AmountDecimal    string  `json:"amount_decimal"`
	Available        *int64  `json:"available,omitempty"`
	AvailableDecimal *string `json:"available_decimal,omitempty"`
}

func (s *Server) getBalance(ctx context.Context, p balanceParams) (*balanceResult, error) {
	view, err := s.vault.Balance(ctx, p.TreasuryID, p.PrincipalID)
	if err != nil {
		return nil, rpcError(err)
	}

	out := &balanceResult{
		TreasuryID:    view.TreasuryID,
		PrincipalID:   view.Principal,
		Amount:        view.Amount,
		AmountDecimal: token.FormatUnits(view.Amount, s.meta.Decimals),
	}
	if view.Vault {
		avail := view.Available
		display := token.FormatUnits(avail, s.meta.Decimals)
		out.Available = &avail
		out.AvailableDecimal = &display
	}
	return out, nil
}

// --- vault.get_status ---

type treasuryStatusInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	TestMode         bool   `json:"test_mode"`
	Balance          int64  `json:"balance"`
	BalanceDecimal   string `json:"balance_decimal"`
	Available        int64  `json:"available"`
	AvailableDecimal string `json:"available_decimal"`
	Cursor           uint64 `json:"cursor"`
	State            string `json:"state"`
	Pending          int    `json:"pending"`
}

type statusResult struct {
	Token                 string               `json:"token"`
	Treasuries            []treasuryStatusInfo `json:"treasuries"`
	TotalBalance          int64                `json:"total_balance"`
	TotalBalanceDecimal   string               `json:"total_balance_decimal"`
	TotalAvailable        int64                `json:"total_available"`
	TotalAvailableDecimal string               `json:"total_available_decimal"`
}

func (s *Server) getStatus(ctx context.Context) (*statusResult, error) {
	status, err := s.vault.Status(ctx)
	if err != nil {
		return nil, rpcError(err)
	}

	out := &statusResult{
		Token:                 s.meta.Symbol,
		Treasuries:            make([]treasuryStatusInfo, 0, len(status.Treasuries)),
		TotalBalance:          status.TotalBalance,
		TotalBalanceDecimal:   token.FormatUnits(status.TotalBalance, s.meta.Decimals),
		TotalAvailable:        status.TotalAvailable,
		TotalAvailableDecimal: token.FormatUnits(status.TotalAvailable, s.meta.Decimals),
	}
	for _, t := range status.Treasuries {
		out.Treasuries = append(out.Treasuries, treasuryStatusInfo{
			ID:               t.ID,
			Name:             t.Name,
			TestMode:         t.TestMode,
			Balance:          t.Balance,
			BalanceDecimal:   token.FormatUnits(t.Balance, s.meta.Decimals),
			Available:        t.Available,
			AvailableDecimal: token.FormatUnits(t.Available, s.meta.Decimals),
			Cursor:           t.Cursor,
			State:            string(t.State),
			Pending:          t.Pending,
		})
	}
	return out, nil
}

// --- vault.get_transactions ---

type transactionsParams struct {
	TreasuryID  string `json:"treasury_id"`
	PrincipalID string `json:"principal_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type transactionInfo struct {
	ID            uint64    `json:"id"`
	Kind          string    `json:"kind"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	Amount        int64     `json:"amount"`
	AmountDecimal string    `json:"amount_decimal"`
	Fee           int64     `json:"fee"`
	Memo          string    `json:"memo,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
}

type transactionsResult struct {
	TreasuryID   string            `json:"treasury_id"`
	Transactions []transactionInfo `json:"transactions"`
}

func (s *Server) getTransactions(ctx context.Context, p transactionsParams) (*transactionsResult, error) {
	recs, err := s.vault.Transactions(ctx, p.TreasuryID, p.PrincipalID, p.Limit)
	if err != nil {
		return nil, rpcError(err)
	}

	out := &transactionsResult{
		TreasuryID:   p.TreasuryID,
		Transactions: make([]transactionInfo, 0, len(recs)),
	}
	for _, rec := range recs {
		out.Transactions = append(out.Transactions, transactionInfo{
			ID:            rec.TxID,
			Kind:          string(rec.Kind),
			From:          rec.From,
			To:            rec.To,
			Amount:        rec.Amount,
			AmountDecimal: token.FormatUnits(rec.Amount, s.meta.Decimals),
			Fee:           rec.Fee,
			Memo:          rec.Memo,
			Timestamp:     rec.Timestamp,
			Status:        string(rec.Status),
		})
	}
	return out, nil
}

// --- vault.transfer ---

type transferParams struct {
	TreasuryID  string          `json:"treasury_id"`
	Caller      string          `json:"caller"`
	ToPrincipal string          `json:"to_principal"`
	Amount      json.RawMessage `json:"amount"`
	Memo        string          `json:"memo,omitempty"`
}

type transferResult struct {
	TreasuryID    string `json:"treasury_id"`
	TransactionID uint64 `json:"transaction_id"`
	ToPrincipal   string `json:"to_principal"`
	Amount        int64  `json:"amount"`
	AmountDecimal string `json:"amount_decimal"`
	Fee           int64  `json:"fee"`
	Ref           string `json:"ref"`
}

// parseAmount accepts raw smallest units as a JSON number, or a decimal
// string in display units ("0.0000025").
func (s *Server) parseAmount(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: amount missing", vault.ErrInvalidAmount)
	}
	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("%w: %v", vault.ErrInvalidAmount, err)
		}
		units, err := token.ParseUnits(str, s.meta.Decimals)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", vault.ErrInvalidAmount, err)
		}
		return units, nil
	}
	var units int64
	if err := json.Unmarshal(raw, &units); err != nil {
		return 0, fmt.Errorf("%w: %v", vault.ErrInvalidAmount, err)
	}
	return units, nil
}

func (s *Server) transfer(ctx context.Context, p transferParams) (*transferResult, error) {
	amount, err := s.parseAmount(p.Amount)
	if err != nil {
		return nil, rpcError(err)
	}

	s.log.Debug("rpc transfer",
		zap.String("treasury", p.TreasuryID),
		zap.String("caller", p.Caller),
		zap.String("to", p.ToPrincipal),
		zap.Int64("amount", amount),
	)

	rcpt, err := s.vault.Transfer(ctx, p.TreasuryID, p.Caller, p.ToPrincipal, amount, p.Memo)
	if err != nil {
		return nil, rpcError(err)
	}
	return &transferResult{
		TreasuryID:    rcpt.TreasuryID,
		TransactionID: rcpt.TxID,
		ToPrincipal:   rcpt.To,
		Amount:        rcpt.Amount,
		AmountDecimal: token.FormatUnits(rcpt.Amount, s.meta.Decimals),
		Fee:           rcpt.Fee,
		Ref:           rcpt.Ref,
	}, nil
}

// --- vault.refresh ---

type refreshParams struct {
	TreasuryID string `json:"treasury_id"`
}

type refreshResult struct {
	TreasuryID     string `json:"treasury_id"`
	NewRecords     int    `json:"new_records"`
	Promoted       int    `json:"promoted"`
	Failed         int    `json:"failed"`
	Cursor         uint64 `json:"cursor"`
	Balance        int64  `json:"balance"`
	BalanceDecimal string `json:"balance_decimal"`
	State          string `json:"state"`
	Ref            string `json:"ref"`
}

func (s *Server) refresh(ctx context.Context, p refreshParams) (*refreshResult, error) {
	sum, err := s.vault.Refresh(ctx, p.TreasuryID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &refreshResult{
		TreasuryID:     sum.TreasuryID,
		NewRecords:     sum.NewRecords,
		Promoted:       sum.Promoted,
		Failed:         sum.Failed,
		Cursor:         sum.Cursor,
		Balance:        sum.Balance,
		BalanceDecimal: token.FormatUnits(sum.Balance, s.meta.Decimals),
		State:          string(sum.State),
		Ref:            sum.Ref,
	}, nil
}
