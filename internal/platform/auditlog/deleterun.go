package auditlog

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// DeleteRunEvent records the outcome of one cascading delete run.
type DeleteRunEvent struct {
	Time       time.Time
	Actor      string
	RequestID  string
	RemoteAddr string
	UserAgent  string

	RunID   string
	Spec    string
	RootID  int64
	Status  string
	Deleted int64
	Options map[string]string
	Steps   any
	Backup  any
	Error   string
}

// InsertDeleteRun writes the event in the caller's transaction, so a
// successful delete and its audit row commit together.
func InsertDeleteRun(ctx context.Context, q QueryRower, event DeleteRunEvent) (int64, error) {
	return Insert(ctx, q, deleteRunEvent(event))
}

func deleteRunEvent(event DeleteRunEvent) Event {
	payload := map[string]any{
		"run_id":  event.RunID,
		"spec":    event.Spec,
		"root_id": event.RootID,
		"status":  event.Status,
		"deleted": event.Deleted,
	}
	if len(event.Options) > 0 {
		payload["options"] = event.Options
	}
	if event.Steps != nil {
		payload["steps"] = event.Steps
	}
	if event.Backup != nil {
		payload["backup"] = event.Backup
	}
	if strings.TrimSpace(event.Error) != "" {
		payload["error"] = event.Error
	}
	return Event{
		OccurredAt:   event.Time,
		Actor:        event.Actor,
		Action:       "delete_run." + strings.TrimSpace(event.Status),
		ResourceType: "delete_spec",
		ResourceID:   strings.TrimSpace(event.Spec) + "/" + strconv.FormatInt(event.RootID, 10),
		RequestID:    event.RequestID,
		IP:           remoteAddr(event.RemoteAddr),
		UserAgent:    event.UserAgent,
		Payload:      payload,
	}
}
