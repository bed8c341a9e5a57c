package engine

import "github.com/nsdbroker/nsdbroker/internal/svcinfo"

// Code is a legacy engine callback code (spec.md §4.6).
type Code int

const (
	ServiceFound Code = iota
	ServiceLost
	ServiceRegistered
	ServiceDiscoveryFailed
	ServiceRegistrationFailed
	ServiceResolutionFailed
	ServiceResolved
	ServiceGetAddrSuccess
	ServiceGetAddrFailed
)

// LocalNet is the legacy engine's sentinel net id meaning "this
// device's own link-local network" (spec.md §4.6): translated to a nil
// Network handle, but its interface index is still worth recording.
const LocalNet uint64 = ^uint64(0)

// DummyNet is the legacy engine's sentinel net id for events that are
// not usable by clients and must be discarded outright (spec.md §4.6's
// network-visibility filter).
const DummyNet uint64 = ^uint64(0) - 1

// Event is a single legacy engine callback (spec.md §4.6).
type Event struct {
	Code          Code
	TransactionID uint32

	// FullName is the escaped full name reported with SERVICE_RESOLVED
	// ("Svc\032Name._foo._tcp.local.").
	FullName string

	// Hostname, Port, TXT are populated on ServiceResolved.
	Hostname string
	Port     uint16
	TXT      svcinfo.TXT

	// NetID, Address, IfaceIndex are populated on ServiceFound/Lost and
	// on ServiceGetAddrSuccess.
	NetID      uint64
	Address    string
	IfaceIndex int

	// ServiceType and InstanceName are populated on ServiceFound/Lost
	// for discovery events (and for loss-correlation against a watch).
	ServiceType  string
	InstanceName string
}

// ManagedEvent is a single managed-backend callback (spec.md §4.6):
// (client_id, requested_service_type, managed_service_info).
type ManagedEvent struct {
	Code               Code
	ClientID           string
	RequestedType      string
	Info               svcinfo.Info
}
