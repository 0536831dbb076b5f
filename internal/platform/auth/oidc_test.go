package auth

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/specs", nil)
	cases := map[string]string{
		"":                "",
		"Basic abc":       "",
		"Bearer":          "",
		"Bearer  tok.en ": "tok.en",
		"bearer tok.en":   "tok.en",
	}
	for header, want := range cases {
		req.Header.Set("Authorization", header)
		if got := bearerToken(req); got != want {
			t.Fatalf("bearerToken(%q)=%q, want %q", header, got, want)
		}
	}
}

func TestClaimsIdentity(t *testing.T) {
	claims := map[string]any{
		"email":  " u@example.test",
		"groups": []any{"Admin", " ", 7, "viewer", "admin"},
	}
	got := claimsIdentity("user-1", claims, "groups", "email")
	want := Identity{Subject: "user-1", Email: "u@example.test", Roles: []string{"admin", "viewer"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("claimsIdentity()=%+v, want %+v", got, want)
	}

	claims["groups"] = "editor,viewer"
	if got := claimsIdentity("user-1", claims, "groups", "email"); !reflect.DeepEqual(got.Roles, []string{"editor", "viewer"}) {
		t.Fatalf("Roles=%v from csv claim", got.Roles)
	}
	delete(claims, "groups")
	if got := claimsIdentity("user-1", claims, "groups", "email"); got.Roles != nil {
		t.Fatalf("Roles=%v, want nil", got.Roles)
	}
}
