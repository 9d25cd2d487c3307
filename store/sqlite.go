// Package store holds the durable backends for vault.Store. SQLite is the
// primary backend; bolt is the embedded key-value alternative. Both enforce
// the same atomicity rules: page ingest, claim deltas and cursor advances
// commit as one step, and the sync cursor never moves backwards.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/treasury/ledger"
	"github.com/rustyeddy/treasury/vault"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateTreasury(ctx context.Context, t vault.Treasury) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	admins, err := json.Marshal(t.Admins)
	if err != nil {
		return fmt.Errorf("create treasury: encode admins: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO treasuries
		(id, name, vault_principal, test_mode, admins, balance, sync_cursor, stale, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.VaultPrincipal, t.TestMode, string(admins),
		t.Balance, int64(t.Cursor), t.Stale, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var exists bool
		row := s.db.QueryRowContext(ctx, `SELECT 1 FROM treasuries WHERE id = ?`, t.ID)
		if scanErr := row.Scan(&exists); scanErr == nil {
			return fmt.Errorf("create treasury: %w: %q", vault.ErrExists, t.ID)
		}
		return fmt.Errorf("create treasury %q: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTreasury(ctx context.Context, id string) (vault.Treasury, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, vault_principal, test_mode, admins, balance, sync_cursor, stale, created_at, updated_at
		FROM treasuries WHERE id = ?`, id)
	return scanTreasury(row, id)
}

func (s *SQLiteStore) ListTreasuries(ctx context.Context) ([]vault.Treasury, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, vault_principal, test_mode, admins, balance, sync_cursor, stale, created_at, updated_at
		FROM treasuries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list treasuries: %w", err)
	}
	defer rows.Close()

	var out []vault.Treasury
	for rows.Next() {
		t, err := scanTreasury(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTreasury(r rowScanner, id string) (vault.Treasury, error) {
	var t vault.Treasury
	var admins string
	var cursor int64
	err := r.Scan(&t.ID, &t.Name, &t.VaultPrincipal, &t.TestMode, &admins,
		&t.Balance, &cursor, &t.Stale, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Treasury{}, fmt.Errorf("get treasury: %w: %q", vault.ErrNotFound, id)
	}
	if err != nil {
		return vault.Treasury{}, fmt.Errorf("get treasury %q: %w", id, err)
	}
	t.Cursor = uint64(cursor)
	if err := json.Unmarshal([]byte(admins), &t.Admins); err != nil {
		return vault.Treasury{}, fmt.Errorf("get treasury %q: decode admins: %w", t.ID, err)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	enc, err := json.Marshal(admins)
	if err != nil {
		return fmt.Errorf("update admins: encode: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE treasuries SET admins = ?, updated_at = ? WHERE id = ?`,
		string(enc), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update admins %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update admins: %w: %q", vault.ErrNotFound, id)
	}
	return nil
}

// ApplyBalance installs a reconciled snapshot. A strictly older cursor is a
// stale pass and changes nothing; an equal cursor re-applies the same
// snapshot, which is idempotent by construction.
func (s *SQLiteStore) ApplyBalance(ctx context.Context, id string, balance int64, cursor uint64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE treasuries SET balance = ?, sync_cursor = ?, stale = 0, updated_at = ?
		WHERE id = ? AND sync_cursor <= ?`,
		balance, int64(cursor), time.Now().UTC(), id, int64(cursor))
	if err != nil {
		return fmt.Errorf("apply balance %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a stale cursor (fine) from a missing treasury (not).
		if _, err := s.GetTreasury(ctx, id); err != nil {
			return fmt.Errorf("apply balance: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) IngestRecords(ctx context.Context, id string, recs []vault.Transaction, cursor uint64) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest records %q: %w", id, err)
	}
	defer tx.Rollback()

	var vaultPrincipal string
	var stored int64
	row := tx.QueryRowContext(ctx, `SELECT vault_principal, sync_cursor FROM treasuries WHERE id = ?`, id)
	if err := row.Scan(&vaultPrincipal, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, fmt.Errorf("ingest records: %w: %q", vault.ErrNotFound, id)
		}
		return 0, 0, fmt.Errorf("ingest records %q: %w", id, err)
	}

	inserted, promoted := 0, 0
	for _, rec := range recs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transactions
			(treasury_id, tx_id, kind, from_p, to_p, amount, fee, memo, ts, status, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (treasury_id, tx_id) DO NOTHING`,
			id, int64(rec.TxID), string(rec.Kind), rec.From, rec.To,
			rec.Amount, rec.Fee, rec.Memo, rec.Timestamp, string(rec.Status), rec.RecordedAt,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("ingest records %q: insert %d: %w", id, rec.TxID, err)
		}

		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
			if err := applyClaimTx(ctx, tx, id, vaultPrincipal, rec, 1); err != nil {
				return 0, 0, err
			}
			continue
		}

		// Already present. A pending row matching this id is the transfer we
		// submitted ourselves; adopt the ledger's fields and confirm it. The
		// claim delta was applied optimistically at submit time.
		res, err = tx.ExecContext(ctx, `
			UPDATE transactions SET kind = ?, from_p = ?, to_p = ?, amount = ?, fee = ?, memo = ?, ts = ?, status = ?
			WHERE treasury_id = ? AND tx_id = ? AND status = ?`,
			string(rec.Kind), rec.From, rec.To, rec.Amount, rec.Fee, rec.Memo, rec.Timestamp,
			string(vault.TxConfirmed), id, int64(rec.TxID), string(vault.TxPending),
		)
		if err != nil {
			return 0, 0, fmt.Errorf("ingest records %q: promote %d: %w", id, rec.TxID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			promoted++
		}
	}

	// Advancing the cursor leaves the cached balance behind the ledger, so
	// the treasury stays stale until the next ApplyBalance.
	if int64(cursor) > stored {
		if _, err := tx.ExecContext(ctx,
			`UPDATE treasuries SET sync_cursor = ?, stale = 1, updated_at = ? WHERE id = ?`,
			int64(cursor), time.Now().UTC(), id); err != nil {
			return 0, 0, fmt.Errorf("ingest records %q: advance cursor: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("ingest records %q: commit: %w", id, err)
	}
	return inserted, promoted, nil
}

func (s *SQLiteStore) RecordPendingOutbound(ctx context.Context, id string, rec vault.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record pending %q: %w", id, err)
	}
	defer tx.Rollback()

	var vaultPrincipal string
	row := tx.QueryRowContext(ctx, `SELECT vault_principal FROM treasuries WHERE id = ?`, id)
	if err := row.Scan(&vaultPrincipal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record pending: %w: %q", vault.ErrNotFound, id)
		}
		return fmt.Errorf("record pending %q: %w", id, err)
	}

	rec.Status = vault.TxPending
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
		(treasury_id, tx_id, kind, from_p, to_p, amount, fee, memo, ts, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, int64(rec.TxID), string(rec.Kind), rec.From, rec.To,
		rec.Amount, rec.Fee, rec.Memo, rec.Timestamp, string(rec.Status), rec.RecordedAt,
	); err != nil {
		return fmt.Errorf("record pending %q: tx %d: %w", id, rec.TxID, err)
	}

	if err := applyClaimTx(ctx, tx, id, vaultPrincipal, rec, 1); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE treasuries SET stale = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id); err != nil {
		return fmt.Errorf("record pending %q: mark stale: %w", id, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) FailPending(ctx context.Context, id string, txID uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fail pending %q: %w", id, err)
	}
	defer tx.Rollback()

	var vaultPrincipal string
	row := tx.QueryRowContext(ctx, `SELECT vault_principal FROM treasuries WHERE id = ?`, id)
	if err := row.Scan(&vaultPrincipal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("fail pending: %w: %q", vault.ErrNotFound, id)
		}
		return fmt.Errorf("fail pending %q: %w", id, err)
	}

	rec, err := scanTransactionRow(tx.QueryRowContext(ctx, `
		SELECT tx_id, kind, from_p, to_p, amount, fee, memo, ts, status, recorded_at
		FROM transactions WHERE treasury_id = ? AND tx_id = ? AND status = ?`,
		id, int64(txID), string(vault.TxPending)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("fail pending: %w: no pending tx %d in %q", vault.ErrNotFound, txID, id)
		}
		return fmt.Errorf("fail pending %q: tx %d: %w", id, txID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = ? WHERE treasury_id = ? AND tx_id = ?`,
		string(vault.TxFailed), id, int64(txID)); err != nil {
		return fmt.Errorf("fail pending %q: tx %d: %w", id, txID, err)
	}

	// The transfer never landed; give the optimistic claim debit back.
	if err := applyClaimTx(ctx, tx, id, vaultPrincipal, rec, -1); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, id, principal string, limit int) ([]vault.Transaction, error) {
	q := `SELECT tx_id, kind, from_p, to_p, amount, fee, memo, ts, status, recorded_at
		FROM transactions WHERE treasury_id = ?`
	args := []any{id}
	if principal != "" {
		q += ` AND (from_p = ? OR to_p = ?)`
		args = append(args, principal, principal)
	}
	q += ` ORDER BY tx_id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions %q: %w", id, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *SQLiteStore) ListPending(ctx context.Context, id string) ([]vault.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, kind, from_p, to_p, amount, fee, memo, ts, status, recorded_at
		FROM transactions WHERE treasury_id = ? AND status = ? ORDER BY tx_id`,
		id, string(vault.TxPending))
	if err != nil {
		return nil, fmt.Errorf("list pending %q: %w", id, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *SQLiteStore) PendingTotal(ctx context.Context, id string) (int64, error) {
	var total int64
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount + fee), 0) FROM transactions
		WHERE treasury_id = ? AND status = ?`, id, string(vault.TxPending))
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("pending total %q: %w", id, err)
	}
	return total, nil
}

func (s *SQLiteStore) PrincipalBalance(ctx context.Context, id, principal string) (int64, error) {
	var amount int64
	row := s.db.QueryRowContext(ctx,
		`SELECT amount FROM claims WHERE treasury_id = ? AND principal = ?`, id, principal)
	err := row.Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("principal balance %q/%q: %w", id, principal, err)
	}
	return amount, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// applyClaimTx adjusts the claim projection for one record. sign is +1 on
// insert and -1 when a pending row fails.
func applyClaimTx(ctx context.Context, tx *sql.Tx, id, vaultPrincipal string, rec vault.Transaction, sign int64) error {
	principal, delta := rec.ClaimDelta(vaultPrincipal)
	if principal == "" || delta == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO claims (treasury_id, principal, amount) VALUES (?, ?, ?)
		ON CONFLICT (treasury_id, principal) DO UPDATE SET amount = amount + excluded.amount`,
		id, principal, sign*delta); err != nil {
		return fmt.Errorf("apply claim %q/%q: %w", id, principal, err)
	}
	return nil
}

func scanTransactionRow(r rowScanner) (vault.Transaction, error) {
	var rec vault.Transaction
	var txID int64
	var kind, status string
	err := r.Scan(&txID, &kind, &rec.From, &rec.To, &rec.Amount, &rec.Fee,
		&rec.Memo, &rec.Timestamp, &status, &rec.RecordedAt)
	if err != nil {
		return vault.Transaction{}, err
	}
	rec.TxID = uint64(txID)
	rec.Kind = ledger.Kind(kind)
	rec.Status = vault.TxStatus(status)
	return rec, nil
}

func collectTransactions(rows *sql.Rows) ([]vault.Transaction, error) {
	var out []vault.Transaction
	for rows.Next() {
		rec, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
