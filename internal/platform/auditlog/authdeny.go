package auditlog

import (
	"context"

	"github.com/animus-labs/cascade/internal/platform/auth"
)

// InsertAuthDeny records a request the auth middleware turned away.
func InsertAuthDeny(ctx context.Context, q QueryRower, service string, deny auth.DenyEvent) error {
	_, err := Insert(ctx, q, authDenyEvent(service, deny))
	return err
}

func authDenyEvent(service string, deny auth.DenyEvent) Event {
	actor := deny.Subject
	if actor == "" {
		actor = "anonymous"
	}
	return Event{
		OccurredAt:   deny.Time,
		Actor:        actor,
		Action:       "auth." + deny.Reason,
		ResourceType: "http",
		ResourceID:   deny.Method + " " + deny.Path,
		RequestID:    deny.RequestID,
		IP:           remoteAddr(deny.RemoteAddr),
		UserAgent:    deny.UserAgent,
		Payload: map[string]any{
			"service": service,
			"status":  deny.Status,
			"error":   deny.Error,
			"roles":   deny.Roles,
		},
	}
}
