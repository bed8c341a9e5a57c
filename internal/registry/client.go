package registry

import (
	"github.com/nsdbroker/nsdbroker/internal/connector"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// MaxRequestsPerClient is the default per-client outstanding-request cap
// (spec.md §3, invariant I3). internal/config may override it.
const MaxRequestsPerClient = 10

// Client is the per-connector bookkeeping the broker owns from
// RegisterClient until UnregisterClient or peer death (spec.md §3).
type Client struct {
	Sink connector.CallbackSink

	// Requests maps the client-chosen listener key to the request it
	// labels. Capacity is enforced by the caller (the event loop),
	// which is the only place that knows the configured limit.
	Requests map[int]*Request

	// IsLegacyClient is true iff this client invoked daemon_startup.
	IsLegacyClient bool

	// ResolvedScratch is the in-flight legacy two-stage resolve state
	// for this client (spec.md §3); nil when no legacy resolve is in
	// flight. Keyed implicitly — a client holds at most one, per
	// spec.md §4.5's FAILURE_ALREADY_ACTIVE rule.
	ResolvedScratch *svcinfo.Info

	// WatchedScratch is the service info tracked by this client's
	// register_service_info_callback watch, if any (invariant I7).
	WatchedScratch *svcinfo.Info

	// WatchedListenerKey is the listener key the watch above is
	// attached to.
	WatchedListenerKey *int
}

// NewClient returns an empty Client record for a newly registered
// connector.
func NewClient(sink connector.CallbackSink) *Client {
	return &Client{
		Sink:     sink,
		Requests: make(map[int]*Request),
	}
}
