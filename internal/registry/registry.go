package registry

import "github.com/nsdbroker/nsdbroker/internal/connector"

// Registry is the `clients` map of spec.md §3: connector handle to client
// record. It is owned exclusively by the event loop goroutine; nothing in
// this package takes a lock because nothing outside the loop may touch it.
type Registry struct {
	clients map[connector.Connector]*Client
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{clients: make(map[connector.Connector]*Client)}
}

// Register installs a new, empty Client record for c, overwriting any
// prior record for the same connector (callers only do this once per
// connector; a second RegisterClient for a live connector is a caller
// bug, not a case this package guards against).
func (r *Registry) Register(c connector.Connector, sink connector.CallbackSink) *Client {
	client := NewClient(sink)
	r.clients[c] = client
	return client
}

// Get returns the client record for c, if any.
func (r *Registry) Get(c connector.Connector) (*Client, bool) {
	client, ok := r.clients[c]
	return client, ok
}

// Remove deletes c's record and returns it, if any existed.
func (r *Registry) Remove(c connector.Connector) (*Client, bool) {
	client, ok := r.clients[c]
	if ok {
		delete(r.clients, c)
	}
	return client, ok
}

// LegacyClientCount returns the number of registered clients with
// IsLegacyClient set (spec.md invariant I4). It is computed on demand
// rather than cached separately, since client counts in practice never
// run high enough for the O(n) scan to matter and a cached counter would
// be one more value to keep in sync by hand.
func (r *Registry) LegacyClientCount() int {
	n := 0
	for _, c := range r.clients {
		if c.IsLegacyClient {
			n++
		}
	}
	return n
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// Range calls fn for every registered client. fn may remove entries via
// Remove during iteration — Go's map semantics guarantee that is safe —
// which is exactly how expungeAllClients unwinds every client in one
// pass (spec.md §4.1's Enabled.exit).
func (r *Registry) Range(fn func(connector.Connector, *Client)) {
	for c, client := range r.clients {
		fn(c, client)
	}
}
