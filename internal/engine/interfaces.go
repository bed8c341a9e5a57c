// Package engine defines the broker's external-collaborator boundary —
// the legacy daemon, the managed discovery manager and advertiser, the
// socket provider, and the network-interface resolver — plus minimal
// reference adapters for each. Per spec.md §1, no mDNS wire encoding
// belongs to the broker core; everything in this package is replaceable,
// and the core (internal/loop) depends only on the interfaces below.
package engine

import (
	"context"

	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// IfaceAny is the "any interface" sentinel used by the legacy path when a
// ServiceInfo carries no network (spec.md §4.5).
const IfaceAny = 0

// LegacyEngine is the out-of-process native mDNS daemon, controlled via
// a manager object (spec.md GLOSSARY).
type LegacyEngine interface {
	// RegisterEventListener installs the callback the engine delivers
	// every LegacyEvent through. Called once, before Start.
	RegisterEventListener(fn func(Event))

	Start(ctx context.Context) error
	Stop() error

	Discover(id uint32, serviceType string, ifaceIndex int) bool
	Register(id uint32, info svcinfo.Info, ifaceIndex int) bool
	Resolve(id uint32, name, serviceType string, ifaceIndex int) bool
	GetServiceAddress(id uint32, hostname string, ifaceIndex int) bool
	StopOperation(id uint32) bool
}

// ManagedDiscoveryManager is the in-process managed backend's discovery
// side (spec.md GLOSSARY).
type ManagedDiscoveryManager interface {
	// RegisterListener starts a discovery or resolution listener for
	// listenedServiceType and returns a handle used to unregister it
	// later. The handle is opaque to the core; it is stored verbatim
	// in the owning ManagedDiscoveryRequest.
	RegisterListener(listenedServiceType string, opts SearchOptions, fn func(ManagedEvent)) (handle any, err error)
	UnregisterListener(listenedServiceType string, handle any) error
}

// SearchOptions parameterizes a managed discovery/resolution listener
// (spec.md §4.5).
type SearchOptions struct {
	Network              svcinfo.Network
	PassiveMode           bool
	ResolveInstanceName   string // only set for resolve
}

// ManagedAdvertiser is the in-process managed backend's advertising side.
type ManagedAdvertiser interface {
	AddService(id uint32, info svcinfo.Info) error
	RemoveService(id uint32) error
}

// SocketProvider owns the multi-network multicast sockets the managed
// backend listens and sends on.
type SocketProvider interface {
	StartMonitoringSockets() error
	StopMonitoringSockets() error
}

// NetworkInterfaceResolver maps a network handle to an OS interface
// index, returning IfaceAny when no usable interface can be found
// (spec.md §9: the best-effort race with network teardown is accepted,
// not treated as an error by this interface).
type NetworkInterfaceResolver interface {
	ResolveInterfaceIndex(network svcinfo.Network) int
}
