package specvalidator

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationErrorOrNil(t *testing.T) {
	var empty *ValidationError
	if empty.OrNil() != nil {
		t.Fatalf("OrNil() on nil receiver should be nil")
	}
	issues := &ValidationError{Document: "catalog"}
	issues.Add("   ")
	if issues.OrNil() != nil {
		t.Fatalf("OrNil() should ignore blank issues")
	}
	issues.Add("types must be non-empty")
	issues.Add("duplicate type \"Image\"")
	err := issues.OrNil()
	if err == nil {
		t.Fatalf("OrNil() expected error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Issues) != 2 {
		t.Fatalf("errors.As() got %#v", err)
	}
	if !strings.HasPrefix(err.Error(), "catalog validation failed: types must be non-empty; ") {
		t.Fatalf("Error()=%q", err.Error())
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		in        string
		ident     bool
		tableName bool
	}{
		{in: "image_id", ident: true, tableName: true},
		{in: "public.image", ident: false, tableName: true},
		{in: "ROOT0", ident: true, tableName: true},
		{in: "1abc", ident: false, tableName: false},
		{in: "image; drop table x", ident: false, tableName: false},
		{in: "a.b.c", ident: false, tableName: false},
		{in: "", ident: false, tableName: false},
	}
	for _, tt := range tests {
		if got := ValidIdentifier(tt.in); got != tt.ident {
			t.Fatalf("ValidIdentifier(%q)=%v, want %v", tt.in, got, tt.ident)
		}
		if got := ValidTableName(tt.in); got != tt.tableName {
			t.Fatalf("ValidTableName(%q)=%v, want %v", tt.in, got, tt.tableName)
		}
	}
}
