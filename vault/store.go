package vault

import "context"

// Store is the durable treasury state: metadata and cached snapshot, the
// reconciled record log, and the per-principal claim projection. Backends
// live in the store package; the service only sees this contract.
//
// Atomicity rules the service relies on:
//   - IngestRecords applies insert + dedup + claim deltas + cursor advance
//     as one step. Re-ingesting an already merged page changes nothing.
//   - Claim deltas apply exactly once per record: on first insert (or on
//     RecordPendingOutbound for optimistic pends) and are reversed only by
//     FailPending. Promotion applies no delta.
//   - Cursor moves forward only. A stale cursor is a silent no-op, the
//     durable backstop under the service's per-treasury serialization.
type Store interface {
	CreateTreasury(ctx context.Context, t Treasury) error
	GetTreasury(ctx context.Context, id string) (Treasury, error)
	ListTreasuries(ctx context.Context) ([]Treasury, error)
	UpdateAdmins(ctx context.Context, id string, admins []string) error

	// ApplyBalance installs a reconciled snapshot and clears the stale mark.
	ApplyBalance(ctx context.Context, id string, balance int64, cursor uint64) error

	// IngestRecords merges one index page. Rows already present are skipped;
	// a present row still pending is promoted to confirmed, adopting the
	// ledger's fields. An advancing cursor marks the treasury stale until
	// the next ApplyBalance. Returns how many rows were newly inserted and
	// how many promoted.
	IngestRecords(ctx context.Context, id string, recs []Transaction, cursor uint64) (inserted, promoted int, err error)

	// RecordPendingOutbound stores a just-submitted transfer as pending,
	// applies its optimistic claim debit and marks the treasury stale.
	RecordPendingOutbound(ctx context.Context, id string, rec Transaction) error

	// FailPending marks a pending row failed and reverses its claim debit.
	FailPending(ctx context.Context, id string, txID uint64) error

	ListTransactions(ctx context.Context, id, principal string, limit int) ([]Transaction, error)
	ListPending(ctx context.Context, id string) ([]Transaction, error)

	// PendingTotal is the amount+fee sum over pending rows, the gap between
	// the cached balance and what is actually spendable.
	PendingTotal(ctx context.Context, id string) (int64, error)

	// PrincipalBalance reads the claim projection; unknown principals are 0.
	PrincipalBalance(ctx context.Context, id, principal string) (int64, error)

	Close() error
}
