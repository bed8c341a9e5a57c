// Package svcinfo holds the ServiceInfo value type shared across the
// broker's client-facing façade, its internal bookkeeping, and its engine
// adapters.
package svcinfo

import "net"

// Network identifies a network the managed backend's socket provider
// knows about. Zero is "no preference" (spec.md §3).
type Network uint64

// TXT is a DNS-SD TXT attribute set: key to raw byte-string value.
// Insertion order carries no meaning (spec.md §3).
type TXT map[string][]byte

// Info is a service description as exchanged between clients and the
// broker: the value both discover results and register/resolve requests
// are expressed in (spec.md §3's ServiceInfo).
type Info struct {
	// Name is the service instance name. On register the broker
	// truncates it to the configured label length (label.MaxLabelLength
	// UTF-8 bytes by default); discovered results may exceed it only for
	// malformed upstream data.
	Name string

	// Type is the DNS-SD service type, e.g. "_http._tcp" or its
	// canonicalized subtype form.
	Type string

	// Port is the TCP/UDP port, meaningful for register/resolve.
	Port uint16

	// TXT carries optional service metadata attributes.
	TXT TXT

	// Network is the network this operation is scoped to, or zero for
	// "any". Only meaningful to the managed backend and to interface
	// resolution on the legacy backend.
	Network Network

	// InterfaceIndex is the OS network interface index this service
	// was discovered on or should be operated on, when known. Negative
	// means "unknown"; zero is the IFACE_ANY sentinel.
	InterfaceIndex int

	// Addresses are the host's resolved IPv4/IPv6 addresses, populated
	// once resolution succeeds.
	Addresses []net.IP
}

// Clone returns a deep-enough copy of info — deep for the TXT map and
// address slice, since those are the fields the broker core mutates
// across the lifetime of a resolve/discover (populating Addresses,
// merging TXT) independently of the caller's original value.
func (info Info) Clone() Info {
	out := info
	if info.TXT != nil {
		out.TXT = make(TXT, len(info.TXT))
		for k, v := range info.TXT {
			cp := make([]byte, len(v))
			copy(cp, v)
			out.TXT[k] = cp
		}
	}
	if info.Addresses != nil {
		out.Addresses = append([]net.IP(nil), info.Addresses...)
	}
	return out
}
