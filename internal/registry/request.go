// Package registry holds the broker's per-client and cross-client
// bookkeeping: client records, their outstanding requests, and the
// transaction index that lets engine callbacks find their owning client
// in O(1) (spec.md §2 leaves 2-3, §3).
package registry

import "github.com/nsdbroker/nsdbroker/internal/svcinfo"

// Kind distinguishes the tagged variants of ClientRequest (spec.md §3).
type Kind int

const (
	// LegacyDiscover is a discover_services call routed to the legacy
	// daemon.
	LegacyDiscover Kind = iota
	// LegacyRegister is a register_service call routed to the legacy
	// daemon.
	LegacyRegister
	// LegacyResolve is a one-shot resolve_service call routed to the
	// legacy daemon's two-stage resolve/get-address protocol.
	LegacyResolve
	// LegacyResolveViaCallback is a register_service_info_callback
	// ("watch") call, which never terminates on its own.
	LegacyResolveViaCallback
	// ManagedDiscovery is a discover_services or resolve_service call
	// routed to the managed discovery manager.
	ManagedDiscovery
	// ManagedAdvertiser is a register_service call routed to the
	// managed advertiser.
	ManagedAdvertiser
)

// String renders a Kind for logs and test failure messages.
func (k Kind) String() string {
	switch k {
	case LegacyDiscover:
		return "legacy-discover"
	case LegacyRegister:
		return "legacy-register"
	case LegacyResolve:
		return "legacy-resolve"
	case LegacyResolveViaCallback:
		return "legacy-resolve-watch"
	case ManagedDiscovery:
		return "managed-discovery"
	case ManagedAdvertiser:
		return "managed-advertiser"
	default:
		return "unknown"
	}
}

// IsLegacy reports whether the request's teardown must go through the
// legacy daemon's stop-operation primitive (spec.md §4.3).
func (k Kind) IsLegacy() bool {
	return k == LegacyDiscover || k == LegacyRegister || k == LegacyResolve || k == LegacyResolveViaCallback
}

// Request is a single outstanding client operation. The Kind is fixed at
// creation and never changes — that fixedness is what lets stop/unregister
// branch on the stored variant instead of re-reading the feature flags
// (spec.md §4.5's "crucial invariant").
type Request struct {
	// GlobalID is the broker-allocated transaction id (spec.md §3).
	GlobalID uint32

	// Kind fixes which backend and which teardown primitive owns this
	// request.
	Kind Kind

	// ListenerHandle is the listener object registered with the managed
	// discovery manager (ManagedDiscovery only); nil otherwise.
	ListenerHandle any

	// ListenedServiceType is the canonicalized, ".local"-suffixed
	// service type the managed discovery manager was given, needed to
	// unregister the same listener later.
	ListenedServiceType string

	// WatchedInstanceName and WatchedServiceType are populated for every
	// legacy resolve-shaped request (Resolve and ResolveViaCallback),
	// carrying the instance/type pair the two-stage protocol resolves
	// against — needed both to rebuild the final ServiceInfo after stage
	// two and, for ResolveViaCallback, to correlate discovery losses
	// against this watch (spec.md §4.5).
	WatchedInstanceName string
	WatchedServiceType  string

	// IfaceIndex is the OS interface index the first stage resolved
	// against, carried forward so the second stage (get-address) targets
	// the same interface.
	IfaceIndex int

	// Hostname is the target host name returned by stage one
	// (SERVICE_RESOLVED), needed to build the stage-two get-address call.
	Hostname string

	// Port and TXT cache stage one's payload until stage two completes
	// and the full ServiceInfo can be delivered.
	Port uint16
	TXT  svcinfo.TXT
}
