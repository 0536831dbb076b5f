package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

// Roles in ascending order of privilege.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

func roleRank(role string) int {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// HasAtLeast reports whether any of roles ranks at or above required.
// Unknown roles rank below viewer.
func HasAtLeast(roles []string, required string) bool {
	need := roleRank(required)
	if need == 0 {
		return false
	}
	for _, role := range roles {
		if roleRank(role) >= need {
			return true
		}
	}
	return false
}

// RequiredRole maps a request to the least role allowed to make it. Reads
// (specs, plans, backups) need viewer. Executing a delete needs admin.
func RequiredRole(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer
	}
	if r.Method == http.MethodPost && strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/deletes") {
		return RoleAdmin
	}
	return RoleEditor
}

// RoleAuthorizer rejects identities ranked below RequiredRole.
func RoleAuthorizer() AuthorizeFunc {
	return func(r *http.Request, identity Identity) error {
		if HasAtLeast(identity.Roles, RequiredRole(r)) {
			return nil
		}
		return ErrForbidden
	}
}
