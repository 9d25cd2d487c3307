package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rustyeddy/treasury/vault"
)

// BoltStore keeps everything in a single bbolt file. Buckets:
//
//	treasuries          id -> JSON treasury row
//	txs/<treasury id>   8-byte big-endian tx id -> JSON transaction
//	claims/<treasury id> principal -> 8-byte big-endian signed amount
//
// Big-endian tx keys make bucket order equal ledger order, so range scans
// come back sorted for free.
type BoltStore struct {
	db *bolt.DB
}

var (
	bucketTreasuries = []byte("treasuries")
	bucketTxs        = []byte("txs")
	bucketClaims     = []byte("claims")
)

func NewBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTreasuries, bucketTxs, bucketClaims} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("init bolt %q: %w", path, err)
	}

	return &BoltStore{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *BoltStore) CreateTreasury(ctx context.Context, t vault.Treasury) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTreasuries)
		if b.Get([]byte(t.ID)) != nil {
			return fmt.Errorf("create treasury: %w: %q", vault.ErrExists, t.ID)
		}
		return putTreasury(tx, t)
	})
}

func putTreasury(tx *bolt.Tx, t vault.Treasury) error {
	enc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode treasury %q: %w", t.ID, err)
	}
	return tx.Bucket(bucketTreasuries).Put([]byte(t.ID), enc)
}

func getTreasury(tx *bolt.Tx, id string) (vault.Treasury, error) {
	raw := tx.Bucket(bucketTreasuries).Get([]byte(id))
	if raw == nil {
		return vault.Treasury{}, fmt.Errorf("get treasury: %w: %q", vault.ErrNotFound, id)
	}
	var t vault.Treasury
	if err := json.Unmarshal(raw, &t); err != nil {
		return vault.Treasury{}, fmt.Errorf("decode treasury %q: %w", id, err)
	}
	return t, nil
}

func (s *BoltStore) GetTreasury(ctx context.Context, id string) (vault.Treasury, error) {
	var t vault.Treasury
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = getTreasury(tx, id)
		return err
	})
	return t, err
}

func (s *BoltStore) ListTreasuries(ctx context.Context) ([]vault.Treasury, error) {
	var out []vault.Treasury
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTreasuries).ForEach(func(k, v []byte) error {
			var t vault.Treasury
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode treasury %q: %w", k, err)
			}
			out = append(out, t)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := getTreasury(tx, id)
		if err != nil {
			return err
		}
		t.Admins = admins
		t.UpdatedAt = time.Now().UTC()
		return putTreasury(tx, t)
	})
}

func (s *BoltStore) ApplyBalance(ctx context.Context, id string, balance int64, cursor uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := getTreasury(tx, id)
		if err != nil {
			return err
		}
		if cursor < t.Cursor {
			return nil // stale pass
		}
		t.Balance = balance
		t.Cursor = cursor
		t.Stale = false
		t.UpdatedAt = time.Now().UTC()
		return putTreasury(tx, t)
	})
}

func txBucket(tx *bolt.Tx, root []byte, id string) (*bolt.Bucket, error) {
	return tx.Bucket(root).CreateBucketIfNotExists([]byte(id))
}

func (s *BoltStore) IngestRecords(ctx context.Context, id string, recs []vault.Transaction, cursor uint64) (int, int, error) {
	inserted, promoted := 0, 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		t, err := getTreasury(tx, id)
		if err != nil {
			return fmt.Errorf("ingest records: %w", err)
		}
		txs, err := txBucket(tx, bucketTxs, id)
		if err != nil {
			return fmt.Errorf("ingest records %q: %w", id, err)
		}

		for _, rec := range recs {
			key := itob(rec.TxID)
			raw := txs.Get(key)

			if raw == nil {
				enc, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("ingest records %q: encode %d: %w", id, rec.TxID, err)
				}
				if err := txs.Put(key, enc); err != nil {
					return fmt.Errorf("ingest records %q: put %d: %w", id, rec.TxID, err)
				}
				inserted++
				if err := applyClaimBolt(tx, id, t.VaultPrincipal, rec, 1); err != nil {
					return err
				}
				continue
			}

			var existing vault.Transaction
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("ingest records %q: decode %d: %w", id, rec.TxID, err)
			}
			if existing.Status != vault.TxPending {
				continue
			}

			// Our own submitted transfer coming back through the index:
			// adopt the authoritative fields, keep the original RecordedAt.
			rec.Status = vault.TxConfirmed
			rec.RecordedAt = existing.RecordedAt
			enc, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("ingest records %q: encode %d: %w", id, rec.TxID, err)
			}
			if err := txs.Put(key, enc); err != nil {
				return fmt.Errorf("ingest records %q: put %d: %w", id, rec.TxID, err)
			}
			promoted++
		}

		// Advancing the cursor leaves the cached balance behind the ledger,
		// so the treasury stays stale until the next ApplyBalance.
		if cursor > t.Cursor {
			t.Cursor = cursor
			t.Stale = true
			t.UpdatedAt = time.Now().UTC()
			if err := putTreasury(tx, t); err != nil {
				return fmt.Errorf("ingest records %q: advance cursor: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, promoted, nil
}

func (s *BoltStore) RecordPendingOutbound(ctx context.Context, id string, rec vault.Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := getTreasury(tx, id)
		if err != nil {
			return fmt.Errorf("record pending: %w", err)
		}
		txs, err := txBucket(tx, bucketTxs, id)
		if err != nil {
			return fmt.Errorf("record pending %q: %w", id, err)
		}

		key := itob(rec.TxID)
		if txs.Get(key) != nil {
			return fmt.Errorf("record pending %q: tx %d already recorded", id, rec.TxID)
		}

		rec.Status = vault.TxPending
		if rec.RecordedAt.IsZero() {
			rec.RecordedAt = time.Now().UTC()
		}
		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("record pending %q: encode %d: %w", id, rec.TxID, err)
		}
		if err := txs.Put(key, enc); err != nil {
			return fmt.Errorf("record pending %q: put %d: %w", id, rec.TxID, err)
		}
		if err := applyClaimBolt(tx, id, t.VaultPrincipal, rec, 1); err != nil {
			return err
		}

		t.Stale = true
		t.UpdatedAt = time.Now().UTC()
		return putTreasury(tx, t)
	})
}

func (s *BoltStore) FailPending(ctx context.Context, id string, txID uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := getTreasury(tx, id)
		if err != nil {
			return fmt.Errorf("fail pending: %w", err)
		}
		txs, err := txBucket(tx, bucketTxs, id)
		if err != nil {
			return fmt.Errorf("fail pending %q: %w", id, err)
		}

		key := itob(txID)
		raw := txs.Get(key)
		if raw == nil {
			return fmt.Errorf("fail pending: %w: no pending tx %d in %q", vault.ErrNotFound, txID, id)
		}
		var rec vault.Transaction
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("fail pending %q: decode %d: %w", id, txID, err)
		}
		if rec.Status != vault.TxPending {
			return fmt.Errorf("fail pending: %w: no pending tx %d in %q", vault.ErrNotFound, txID, id)
		}

		rec.Status = vault.TxFailed
		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("fail pending %q: encode %d: %w", id, txID, err)
		}
		if err := txs.Put(key, enc); err != nil {
			return fmt.Errorf("fail pending %q: put %d: %w", id, txID, err)
		}

		// The transfer never landed; give the optimistic claim debit back.
		return applyClaimBolt(tx, id, t.VaultPrincipal, rec, -1)
	})
}

func (s *BoltStore) ListTransactions(ctx context.Context, id, principal string, limit int) ([]vault.Transaction, error) {
	var out []vault.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTxs).Bucket([]byte(id))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec vault.Transaction
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("list transactions %q: decode: %w", id, err)
			}
			if principal != "" && rec.From != principal && rec.To != principal {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) ListPending(ctx context.Context, id string) ([]vault.Transaction, error) {
	var out []vault.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTxs).Bucket([]byte(id))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec vault.Transaction
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("list pending %q: decode: %w", id, err)
			}
			if rec.Status == vault.TxPending {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) PendingTotal(ctx context.Context, id string) (int64, error) {
	pending, err := s.ListPending(ctx, id)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, rec := range pending {
		total += rec.Amount + rec.Fee
	}
	return total, nil
}

func (s *BoltStore) PrincipalBalance(ctx context.Context, id, principal string) (int64, error) {
	var amount int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClaims).Bucket([]byte(id))
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(principal)); raw != nil {
			amount = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	return amount, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func applyClaimBolt(tx *bolt.Tx, id, vaultPrincipal string, rec vault.Transaction, sign int64) error {
	principal, delta := rec.ClaimDelta(vaultPrincipal)
	if principal == "" || delta == 0 {
		return nil
	}
	b, err := txBucket(tx, bucketClaims, id)
	if err != nil {
		return fmt.Errorf("apply claim %q/%q: %w", id, principal, err)
	}

	var current int64
	if raw := b.Get([]byte(principal)); raw != nil {
		current = int64(binary.BigEndian.Uint64(raw))
	}
	current += sign * delta

	buf := itob(uint64(current))
	if err := b.Put([]byte(principal), buf); err != nil {
		return fmt.Errorf("apply claim %q/%q: %w", id, principal, err)
	}
	return nil
}
