package requestid

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	a := New()
	if len(a) != 32 {
		t.Fatalf("len=%d, want 32", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Fatalf("not hex: %v", err)
	}
	if b := New(); a == b {
		t.Fatalf("New() returned %q twice", a)
	}
	if !Valid(a) {
		t.Fatalf("Valid(New())=false")
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"rid-123":                true,
		"gw:2024/abc_DEF.1":      true,
		"":                       false,
		"has space":              false,
		"line\nbreak":            false,
		"caf\u00e9":              false,
		strings.Repeat("a", 128): true,
		strings.Repeat("a", 129): false,
	}
	for id, want := range cases {
		if got := Valid(id); got != want {
			t.Fatalf("Valid(%q)=%v, want %v", id, got, want)
		}
	}
}
