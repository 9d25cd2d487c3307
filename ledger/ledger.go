package ledger

import (
	"context"
	"errors"
	"time"
)

// Gateway is the only path between the vault and a token ledger. The real
// adapter (ledger/icrc) and the test-mode simulator (ledger/sim) both
// implement it; which one a treasury gets is fixed when the treasury loads.
type Gateway interface {
	// QueryBalance returns the ledger's point-in-time balance for principal.
	QueryBalance(ctx context.Context, principal string) (int64, error)

	// TransferFee returns the ledger's flat fee for a transfer.
	TransferFee(ctx context.Context) (int64, error)

	// SubmitTransfer submits exactly once and returns the ledger transaction
	// id. A transport failure leaves the outcome AMBIGUOUS: the transfer may
	// or may not have landed. Callers must not retry; reconciliation against
	// the index resolves which outcome the ledger reached.
	SubmitTransfer(ctx context.Context, req TransferRequest) (uint64, error)

	// ListTransactions reads an ascending page of account history after the
	// Since cursor. Idempotent: the same request returns consistent results.
	ListTransactions(ctx context.Context, req ListRequest) (Page, error)
}

// Kind tags how value moved in a ledger record.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindMint     Kind = "mint" // no From
	KindBurn     Kind = "burn" // no To
)

// Record is one ledger transaction as the index reports it.
type Record struct {
	ID        uint64
	Kind      Kind
	From      string
	To        string
	Amount    int64
	Fee       int64
	Memo      string
	Timestamp time.Time
}

type TransferRequest struct {
	From      string
	To        string
	Amount    int64
	Fee       int64
	Memo      string
	ClientRef string
}

type ListRequest struct {
	Principal string
	Since     uint64 // exclusive; 0 reads from genesis
	Limit     int
}

// Page holds Records ascending by ID, all strictly greater than the request
// cursor. Cursor is the highest ID in the page, or the request cursor when
// the page is empty.
type Page struct {
	Records []Record
	Cursor  uint64
}

var (
	// ErrUnavailable covers transport failures, timeouts and 5xx responses.
	// Reads may be retried; submits must not be (the outcome is ambiguous).
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected means the ledger refused the operation permanently.
	ErrRejected = errors.New("ledger rejected")

	// ErrInsufficientFunds is reported for amount+fee over balance, whether
	// detected locally against the cached view or by the ledger itself.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
