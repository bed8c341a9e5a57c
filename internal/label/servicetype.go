// Package label implements the syntactic validation, canonicalization,
// truncation, and DNS-escape handling for service-discovery name labels.
//
// None of this is mDNS wire encoding — it operates purely on the Go strings
// the broker core exchanges with clients and with the engine adapters, per
// the "Name-label utilities" leaf of the broker's component design.
package label

import "regexp"

// labelPattern matches a single DNS-SD subtype or protocol label: a leading
// underscore, 1-61 alphanumeric/hyphen/underscore characters, and a trailing
// alphanumeric character — "_L" in the broker's grammar.
const labelPattern = `_[a-zA-Z0-9_-]{1,61}[a-zA-Z0-9]`

// serviceTypeRE matches "(_L\.)?(_L\._(tcp|udp))": an optional leading
// subtype label, then the required service label and transport protocol.
var serviceTypeRE = regexp.MustCompile(`^(` + labelPattern + `\.)?(` + labelPattern + `\._(?:tcp|udp))$`)

// ValidateServiceType checks syntactic validity of a DNS-SD service type and
// returns it in canonical form.
//
// Accepted inputs:
//   - "_proto._tcp" or "_proto._udp" — returned unchanged.
//   - "_subtype._proto._tcp" — rewritten to "_subtype._sub._proto._tcp".
//
// Empty strings, malformed labels, and protocols other than tcp/udp are
// rejected. On rejection ok is false and canonical is empty; callers
// translate that into an internal-error failure callback (spec.md §4.4).
func ValidateServiceType(serviceType string) (canonical string, ok bool) {
	if serviceType == "" {
		return "", false
	}

	m := serviceTypeRE.FindStringSubmatch(serviceType)
	if m == nil {
		return "", false
	}

	subtype, base := m[1], m[2]
	if subtype == "" {
		return base, true
	}

	// subtype includes its trailing dot already ("_sub1.")
	return subtype + "_sub." + base, true
}
