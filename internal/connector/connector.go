// Package connector defines the broker's IPC-facing boundary: the opaque
// per-client handle with death notification, and the asynchronous
// callback sink the event loop delivers results through. The transport
// that actually carries these calls across a process boundary is outside
// this repository's scope (spec.md §1) — this package is the seam.
package connector

import "github.com/nsdbroker/nsdbroker/internal/svcinfo"

// Connector is an opaque per-client handle. Connectors compare by
// identity (==), which is what the registry's client map and the
// transaction index key off of.
type Connector interface {
	// ID returns a stable, log-friendly identifier for the client. It
	// carries no semantic meaning to the broker beyond diagnostics.
	ID() string

	// NotifyOnDeath registers fn to be invoked exactly once when the
	// client's IPC peer dies. Implementations must tolerate fn being
	// called from any goroutine; the broker's own handler re-enters
	// the event loop by posting an UnregisterClient message rather
	// than touching state directly.
	NotifyOnDeath(fn func())
}

// CallbackSink is the set of asynchronous callbacks the event loop
// delivers to a registered client (spec.md §6's reply table). Every
// method may be called from the loop goroutine only; implementations
// must not block. The methods have no error result, so the loop has no
// sink error to log or swallow; it does not recover a sink that panics.
type CallbackSink interface {
	OnDiscoveryStarted(listenerKey int)
	OnDiscoveryFailed(listenerKey int, reason error)
	OnServiceFound(listenerKey int, info svcinfo.Info)
	OnServiceLost(listenerKey int, info svcinfo.Info)

	OnRegisterSucceeded(listenerKey int, info svcinfo.Info)
	OnRegisterFailed(listenerKey int, reason error)

	OnResolveSucceeded(listenerKey int, info svcinfo.Info)
	OnResolveFailed(listenerKey int, reason error)

	OnServiceUpdated(listenerKey int, info svcinfo.Info)
	OnServiceUpdatedLost(listenerKey int, info svcinfo.Info)
	OnCallbackRegistrationFailed(listenerKey int, reason error)

	// OnStopSucceeded and OnStopFailed answer stop_discovery,
	// unregister_service, stop_resolution, and
	// unregister_service_info_callback — every stop-shaped operation's
	// sync reply is "a synchronous failure callback" per spec.md §4.1,
	// so stop results share this one pair of methods rather than one
	// pair per operation.
	OnStopSucceeded(listenerKey int)
	OnStopFailed(listenerKey int, reason error)
}
