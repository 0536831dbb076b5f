package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/cascade/internal/platform/httpserver"
)

type AuthorizeFunc func(r *http.Request, identity Identity) error

// DenyEvent describes a request rejected with 401 or 403.
type DenyEvent struct {
	Time       time.Time
	Status     int
	Reason     string
	Error      string
	RequestID  string
	Method     string
	Path       string
	Subject    string
	Roles      []string
	RemoteAddr string
	UserAgent  string
}

type AuditFunc func(ctx context.Context, event DenyEvent) error

// Middleware authenticates every request outside SkipPrefixes, applies
// Authorize, and stores the Identity in the request context.
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Authorize     AuthorizeFunc
	Audit         AuditFunc
	SkipPrefixes  []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			// A missing credential and a rejected one are reported apart.
			code, reason := "invalid_token", "invalid_token"
			if errors.Is(err, ErrUnauthenticated) {
				code, reason = "unauthorized", "unauthenticated"
			}
			m.deny(w, r, http.StatusUnauthorized, code, reason, Identity{}, err)
			return
		}
		if m.Authorize != nil {
			if err := m.Authorize(r, identity); err != nil {
				m.deny(w, r, http.StatusForbidden, "forbidden", "forbidden", identity, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) skipped(path string) bool {
	for _, prefix := range m.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, status int, code, reason string, identity Identity, cause error) {
	event := DenyEvent{
		Time:       time.Now().UTC(),
		Status:     status,
		Reason:     reason,
		Error:      cause.Error(),
		RequestID:  r.Header.Get("X-Request-Id"),
		Method:     r.Method,
		Path:       r.URL.Path,
		Subject:    identity.Subject,
		Roles:      identity.Roles,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if m.Logger != nil {
		m.Logger.Warn("auth deny",
			"request_id", event.RequestID,
			"status", status,
			"reason", reason,
			"method", event.Method,
			"path", event.Path,
			"subject", event.Subject,
			"error", event.Error,
		)
	}
	if m.Audit != nil {
		if err := m.Audit(r.Context(), event); err != nil && m.Logger != nil {
			m.Logger.Warn("audit auth deny failed", "request_id", event.RequestID, "error", err)
		}
	}
	httpserver.WriteJSON(w, status, map[string]string{
		"error":      code,
		"request_id": event.RequestID,
	})
}
