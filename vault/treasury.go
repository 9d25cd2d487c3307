package vault

import (
	"time"

	"github.com/rustyeddy/treasury/ledger"
)

// Treasury is one custody account on the token ledger. VaultPrincipal is the
// ledger account the treasury controls; Balance and Cursor form the cached
// snapshot of that account as of the last reconciliation. TestMode is fixed
// at creation and decides, once, which gateway the treasury talks to.
type Treasury struct {
	ID             string
	Name           string
	VaultPrincipal string
	TestMode       bool
	Admins         []string
	Balance        int64
	Cursor         uint64
	Stale          bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsAdmin reports whether principal may authorize transfers. The list is
// populated from configuration and read-only here.
func (t *Treasury) IsAdmin(principal string) bool {
	for _, a := range t.Admins {
		if a == principal {
			return true
		}
	}
	return false
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Transaction is a durable ledger record as the vault keeps it. TxID is the
// ledger's id, unique per treasury. Pending rows exist between a successful
// submit and the refresh that confirms or fails them.
type Transaction struct {
	TxID       uint64
	Kind       ledger.Kind
	From       string
	To         string
	Amount     int64
	Fee        int64
	Memo       string
	Timestamp  time.Time
	Status     TxStatus
	RecordedAt time.Time
}

// FromRecord converts an index record into a confirmed row.
func FromRecord(rec ledger.Record, recordedAt time.Time) Transaction {
	return Transaction{
		TxID:       rec.ID,
		Kind:       rec.Kind,
		From:       rec.From,
		To:         rec.To,
		Amount:     rec.Amount,
		Fee:        rec.Fee,
		Memo:       rec.Memo,
		Timestamp:  rec.Timestamp,
		Status:     TxConfirmed,
		RecordedAt: recordedAt,
	}
}

// ClaimDelta is the record's effect on a member principal's claim inside the
// treasury: a deposit into the vault raises the sender's claim, a payout
// from the vault lowers the recipient's. Mints, burns and records that do
// not touch the vault principal move no claim.
func (tx *Transaction) ClaimDelta(vaultPrincipal string) (principal string, delta int64) {
	if tx.Kind != ledger.KindTransfer {
		return "", 0
	}
	switch {
	case tx.To == vaultPrincipal && tx.From != "":
		return tx.From, tx.Amount
	case tx.From == vaultPrincipal && tx.To != "":
		return tx.To, -tx.Amount
	default:
		return "", 0
	}
}

type SyncState string

const (
	SyncCreated SyncState = "created" // never reconciled
	SyncSyncing SyncState = "syncing" // a mutating op holds the treasury
	SyncSynced  SyncState = "synced"
	SyncStale   SyncState = "stale" // cache known to lag (pending outbound)
)

// BalanceView answers get_balance. Available is only meaningful when the
// principal is the vault principal itself.
type BalanceView struct {
	TreasuryID string
	Principal  string
	Amount     int64
	Available  int64
	Vault      bool
}

type TreasuryStatus struct {
	ID        string
	Name      string
	TestMode  bool
	Balance   int64
	Available int64
	Cursor    uint64
	State     SyncState
	Pending   int
}

// VaultStatus is the vault-wide snapshot behind get_status.
type VaultStatus struct {
	Treasuries     []TreasuryStatus
	TotalBalance   int64
	TotalAvailable int64
}

// Receipt acknowledges an accepted transfer. TxID is the ledger's id; Ref is
// the audit reference the submission carried.
type Receipt struct {
	TreasuryID string
	TxID       uint64
	To         string
	Amount     int64
	Fee        int64
	Ref        string
}

// RefreshSummary reports one reconciliation run. State is SyncSynced after a
// full drain; SyncStale when the page budget ran out with records remaining,
// in which case another refresh continues from Cursor.
type RefreshSummary struct {
	TreasuryID string
	NewRecords int
	Promoted   int
	Failed     int
	Cursor     uint64
	Balance    int64
	State      SyncState
	Ref        string
}
