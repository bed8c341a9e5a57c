package registry

import "github.com/nsdbroker/nsdbroker/internal/connector"

// Transactions is the broker-global `transactions` map of spec.md §3:
// global_id to owning connector, giving O(1) reverse lookup when engine
// callbacks arrive (spec.md §2 leaf 3).
type Transactions struct {
	owners map[uint32]connector.Connector
}

// NewTransactions returns an empty Transactions index.
func NewTransactions() *Transactions {
	return &Transactions{owners: make(map[uint32]connector.Connector)}
}

// Put records that globalID belongs to c. Overwriting an existing entry
// would violate invariant I2 (every key owned by exactly one live
// request) and is never done; callers remove before re-adding when a
// transaction id is reused across stages (the legacy two-stage resolve
// allocates a fresh id for its second stage specifically to avoid this).
func (t *Transactions) Put(globalID uint32, c connector.Connector) {
	t.owners[globalID] = c
}

// Lookup returns the connector owning globalID, if the transaction is
// still live.
func (t *Transactions) Lookup(globalID uint32) (connector.Connector, bool) {
	c, ok := t.owners[globalID]
	return c, ok
}

// Remove deletes globalID's entry, if any.
func (t *Transactions) Remove(globalID uint32) {
	delete(t.owners, globalID)
}

// Len returns the number of live transactions, used by the socket-
// monitoring lifecycle gate (spec.md §4.7).
func (t *Transactions) Len() int {
	return len(t.owners)
}
