package label

import "unicode/utf8"

// MaxLabelLength is the maximum number of UTF-8 bytes an instance name may
// occupy on the wire per RFC 6763 §4.1.1. TruncateInstanceName falls back
// to it when called with a non-positive maxLen.
const MaxLabelLength = 63

// TruncateInstanceName truncates name to at most maxLen UTF-8 bytes (or
// MaxLabelLength if maxLen <= 0, e.g. a zero-value config.Config), never
// splitting a multi-byte codepoint.
func TruncateInstanceName(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxLabelLength
	}

	// The longest rune count for which even an all-4-byte-codepoint name
	// is guaranteed to fit, letting the common case skip the
	// byte-accounting loop entirely.
	maxFastPathRunes := maxLen / 4
	if utf8.RuneCountInString(name) <= maxFastPathRunes {
		return name
	}

	if len(name) <= maxLen {
		return name
	}

	n := 0
	for i, r := range name {
		next := i + utf8.RuneLen(r)
		if next > maxLen {
			return name[:n]
		}
		n = next
	}
	return name
}
