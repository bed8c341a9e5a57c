package engine

import (
	"net"

	"github.com/nsdbroker/nsdbroker/internal/svcinfo"
)

// OSInterfaceResolver resolves a Network handle to an OS interface index
// via net.InterfaceByIndex, grounded on the teacher's
// contracts.InterfaceResolver. Unlike the teacher's version (which
// errors), this one returns IfaceAny on any failure — the legacy path's
// caller treats that as "no usable interface" and fails the request
// itself (spec.md §4.5, §9).
type OSInterfaceResolver struct {
	// Lookup resolves a Network handle to an OS interface index
	// directly, when the broker already knows the mapping (e.g. the
	// caller stamped svcinfo.Info.InterfaceIndex itself). When nil,
	// ResolveInterfaceIndex treats every Network as "no known mapping"
	// and returns IfaceAny.
	Lookup func(network svcinfo.Network) (ifaceIndex int, ok bool)
}

func (r *OSInterfaceResolver) ResolveInterfaceIndex(network svcinfo.Network) int {
	if network == 0 {
		return IfaceAny
	}
	if r.Lookup == nil {
		return IfaceAny
	}
	idx, ok := r.Lookup(network)
	if !ok {
		return IfaceAny
	}
	if _, err := net.InterfaceByIndex(idx); err != nil {
		return IfaceAny
	}
	return idx
}
