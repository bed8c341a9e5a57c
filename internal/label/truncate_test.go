package label

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateInstanceName_ShortNameUnchanged(t *testing.T) {
	name := "My Printer"
	if got := TruncateInstanceName(name, MaxLabelLength); got != name {
		t.Fatalf("TruncateInstanceName(%q) = %q, want unchanged", name, got)
	}
}

func TestTruncateInstanceName_ASCIITruncatedToMaxLength(t *testing.T) {
	name := strings.Repeat("a", 100)
	got := TruncateInstanceName(name, MaxLabelLength)
	if len(got) != MaxLabelLength {
		t.Fatalf("len(got) = %d, want %d", len(got), MaxLabelLength)
	}
}

func TestTruncateInstanceName_MultiByteTruncatesOnCodepointBoundary(t *testing.T) {
	// 20 four-byte codepoints (80 bytes) must truncate to at most
	// MaxLabelLength bytes without splitting a codepoint.
	name := strings.Repeat("\U0001F600", 20)
	got := TruncateInstanceName(name, MaxLabelLength)
	if len(got) > MaxLabelLength {
		t.Fatalf("len(got) = %d, want <= %d", len(got), MaxLabelLength)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("TruncateInstanceName(%q) produced invalid UTF-8: %q", name, got)
	}
}

func TestTruncateInstanceName_NonPositiveMaxLenFallsBackToDefault(t *testing.T) {
	name := strings.Repeat("a", 100)
	got := TruncateInstanceName(name, 0)
	if len(got) != MaxLabelLength {
		t.Fatalf("len(got) = %d, want %d (default fallback)", len(got), MaxLabelLength)
	}
}

func TestTruncateInstanceName_CustomMaxLen(t *testing.T) {
	name := strings.Repeat("a", 20)
	got := TruncateInstanceName(name, 10)
	if len(got) != 10 {
		t.Fatalf("len(got) = %d, want 10", len(got))
	}
}
