package vault

import (
	"fmt"
	"time"
)

// Policy carries the operational knobs. PageLimit and MaxPages bound the
// work one refresh may do; PendingTimeout is the staleness window after
// which an unconfirmed outbound transfer is declared failed; DefaultFee is
// the simulator fee and the fallback when the ledger's fee query is down.
type Policy struct {
	PageLimit      int
	MaxPages       int
	PendingTimeout time.Duration
	DefaultFee     int64
}

func DefaultPolicy() Policy {
	return Policy{
		PageLimit:      20,
		MaxPages:       5,
		PendingTimeout: 10 * time.Minute,
		DefaultFee:     10,
	}
}

func (p Policy) Validate() error {
	if p.PageLimit <= 0 {
		return fmt.Errorf("policy: page limit must be positive, got %d", p.PageLimit)
	}
	if p.MaxPages <= 0 {
		return fmt.Errorf("policy: max pages must be positive, got %d", p.MaxPages)
	}
	if p.PendingTimeout <= 0 {
		return fmt.Errorf("policy: pending timeout must be positive, got %s", p.PendingTimeout)
	}
	if p.DefaultFee < 0 {
		return fmt.Errorf("policy: default fee must not be negative, got %d", p.DefaultFee)
	}
	return nil
}

// authorizeTransfer applies the rules that need no ledger call: requester in
// the admin list, a positive amount, a recipient.
func authorizeTransfer(t *Treasury, requester, to string, amount int64) error {
	if !t.IsAdmin(requester) {
		return fmt.Errorf("transfer %q: %w: %q", t.ID, ErrUnauthorized, requester)
	}
	if amount <= 0 {
		return fmt.Errorf("transfer %q: %w: %d", t.ID, ErrInvalidAmount, amount)
	}
	if to == "" {
		return fmt.Errorf("transfer %q: %w: empty recipient", t.ID, ErrInvalidAmount)
	}
	return nil
}
