// Package nsd is the public façade over the broker core: it exposes the
// client-facing operations of spec.md §6 as ordinary Go method calls on
// Broker, translating each into a typed message posted to the event
// loop in internal/loop. Nothing outside this package and internal/loop
// ever touches broker state.
package nsd

import (
	"github.com/nsdbroker/nsdbroker/internal/brokererr"
	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// ServiceInfo is the service description exchanged with callers:
// register_service/resolve_service arguments and discover/resolve
// results alike (spec.md §3's ServiceInfo).
type ServiceInfo = svcinfo.Info

// TXT is a DNS-SD TXT attribute set.
type TXT = svcinfo.TXT

// Network identifies a network the managed backend's socket provider
// knows about; zero means "no preference".
type Network = svcinfo.Network

// Error taxonomy re-exported from internal/brokererr so callers can use
// errors.Is against the sentinels this package returns without importing
// an internal package (spec.md §7).
var (
	ErrInternal            = brokererr.Internal
	ErrMaxLimit            = brokererr.MaxLimit
	ErrAlreadyActive       = brokererr.AlreadyActive
	ErrBadParameters       = brokererr.BadParameters
	ErrOperationNotRunning = brokererr.OperationNotRunning
)
