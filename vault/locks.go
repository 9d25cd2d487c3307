package vault

import "sync"

// lockTable serializes mutating operations per treasury id. A second caller
// is rejected rather than queued; interleaving a transfer's optimistic
// balance check with a refresh's snapshot overwrite is the corruption this
// exists to prevent. Different ids never contend.
type lockTable struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]bool)}
}

// acquire reports whether the id was free and is now held.
func (lt *lockTable) acquire(id string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.held[id] {
		return false
	}
	lt.held[id] = true
	return true
}

func (lt *lockTable) release(id string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	delete(lt.held, id)
}

// busy is a read-only peek for status reporting.
func (lt *lockTable) busy(id string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.held[id]
}
