package engine

import (
	"strings"
	"testing"
)

func TestSanitizeQueryStripsSpecialCharacters(t *testing.T) {
	got, err := SanitizeQuery("AI/ML internships!! 2024")
	if err != nil {
		t.Fatalf("SanitizeQuery: %v", err)
	}
	if got != "AIML internships 2024" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestSanitizeQueryRejectsTooShort(t *testing.T) {
	for _, q := range []string{"ab", "!!@@", "  a  ", ""} {
		if _, err := SanitizeQuery(q); err != ErrQueryTooShort {
			t.Errorf("expected ErrQueryTooShort for %q, got %v", q, err)
		}
	}
}

func TestSanitizeQueryTruncates(t *testing.T) {
	got, err := SanitizeQuery(strings.Repeat("a", 300))
	if err != nil {
		t.Fatalf("SanitizeQuery: %v", err)
	}
	if len(got) != MaxQueryLen {
		t.Fatalf("expected %d chars got %d", MaxQueryLen, len(got))
	}
}

func TestSanitizeQueryPassesCleanInput(t *testing.T) {
	got, err := SanitizeQuery("summer research programs")
	if err != nil {
		t.Fatalf("SanitizeQuery: %v", err)
	}
	if got != "summer research programs" {
		t.Fatalf("clean input altered: %q", got)
	}
}
