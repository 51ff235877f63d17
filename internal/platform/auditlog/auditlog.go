package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Event is one append-only audit record about a run.
type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Payload      any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Appender stores audit events.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// SQLAppender inserts events into the audit_events table.
type SQLAppender struct {
	q QueryRower
}

func NewSQLAppender(q QueryRower) *SQLAppender {
	if q == nil {
		return nil
	}
	return &SQLAppender{q: q}
}

func (a *SQLAppender) Append(ctx context.Context, event Event) error {
	if a == nil || a.q == nil {
		return errors.New("audit appender not initialized")
	}
	_, err := Insert(ctx, a.q, event)
	return err
}

const CreateTableStatement = `CREATE TABLE IF NOT EXISTS audit_events (
	event_id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	payload JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`

const insertEventQuery = `INSERT INTO audit_events (
	occurred_at,
	actor,
	action,
	resource_type,
	resource_id,
	payload,
	integrity_sha256
) VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING event_id`

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return errors.New("ResourceType is required")
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return errors.New("ResourceID is required")
	}
	return nil
}

func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		insertEventQuery,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.ResourceType),
		strings.TrimSpace(event.ResourceID),
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt   time.Time       `json:"occurred_at"`
		Actor        string          `json:"actor"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		ResourceID   string          `json:"resource_id"`
		Payload      json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt:   event.OccurredAt.UTC(),
		Actor:        strings.TrimSpace(event.Actor),
		Action:       strings.TrimSpace(event.Action),
		ResourceType: strings.TrimSpace(event.ResourceType),
		ResourceID:   strings.TrimSpace(event.ResourceID),
		Payload:      payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
