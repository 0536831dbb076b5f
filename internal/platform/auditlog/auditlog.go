// Package auditlog appends rows to audit_events. Each row carries a SHA-256
// digest over its own columns so an edited row no longer matches.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

const insertEventSQL = `INSERT INTO audit_events
	(occurred_at, actor, action, resource_type, resource_id, request_id, ip, user_agent, payload, integrity_sha256)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING event_id`

// Event is one audit_events row before insertion.
type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	IP           netip.Addr
	UserAgent    string
	Payload      any
}

// QueryRower is satisfied by *sql.DB, *sql.Tx and postgres.Session.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Insert writes event and returns its event_id. A zero OccurredAt is
// stamped with the current UTC time.
func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("audit insert: no queryer")
	}
	event = event.normalized()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if missing := event.missing(); missing != "" {
		return 0, fmt.Errorf("audit insert: %s is required", missing)
	}
	payload, err := encodePayload(event.Payload)
	if err != nil {
		return 0, err
	}

	var ip sql.NullString
	if event.IP.IsValid() {
		ip = sql.NullString{String: event.IP.String(), Valid: true}
	}
	var id int64
	err = q.QueryRowContext(ctx, insertEventSQL,
		event.OccurredAt,
		event.Actor,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		optional(event.RequestID),
		ip,
		optional(event.UserAgent),
		payload,
		digest(event, payload),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event %s: %w", event.Action, err)
	}
	return id, nil
}

func (e Event) normalized() Event {
	e.OccurredAt = e.OccurredAt.UTC()
	e.Actor = strings.TrimSpace(e.Actor)
	e.Action = strings.TrimSpace(e.Action)
	e.ResourceType = strings.TrimSpace(e.ResourceType)
	e.ResourceID = strings.TrimSpace(e.ResourceID)
	e.RequestID = strings.TrimSpace(e.RequestID)
	e.UserAgent = strings.TrimSpace(e.UserAgent)
	return e
}

// missing names the first empty required column, or returns "".
func (e Event) missing() string {
	switch {
	case e.OccurredAt.IsZero():
		return "occurred_at"
	case e.Actor == "":
		return "actor"
	case e.Action == "":
		return "action"
	case e.ResourceType == "":
		return "resource_type"
	case e.ResourceID == "":
		return "resource_id"
	}
	return ""
}

func encodePayload(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	return raw, nil
}

// digest hashes the normalized columns in insert order, each terminated by
// a NUL byte so adjacent fields cannot be shifted into one another.
func digest(e Event, payload []byte) string {
	h := sha256.New()
	ip := ""
	if e.IP.IsValid() {
		ip = e.IP.String()
	}
	for _, field := range []string{
		e.OccurredAt.Format(time.RFC3339Nano),
		e.Actor,
		e.Action,
		e.ResourceType,
		e.ResourceID,
		e.RequestID,
		ip,
		e.UserAgent,
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func optional(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// remoteAddr parses "host:port" or a bare host; anything else yields the
// zero Addr, which is stored as NULL.
func remoteAddr(raw string) netip.Addr {
	raw = strings.TrimSpace(raw)
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap()
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
