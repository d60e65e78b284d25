package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event topics carried on the bus.
const (
	TopicSessionStarted   = "session.started"
	TopicSessionSubmitted = "session.submitted"
	TopicScoreCalculated  = "score.calculated"
)

// EventEnvelope wraps every bus message. ID is the stable event identifier
// consumers deduplicate on; the bus itself is at-least-once.
type EventEnvelope struct {
	ID         uuid.UUID       `json:"event_id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope assigns a fresh event identifier and marshals the payload.
func NewEnvelope(eventType string, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// StartEvent is the payload of a session.started envelope. Nothing in the
// pipeline consumes it; it exists for downstream collaborators (analytics,
// proctoring) listening on the lifecycle queue.
type StartEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	ExamID    uuid.UUID `json:"exam_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// SubmissionEvent is the payload of a session.submitted envelope. It carries
// the full answer set so the scoring engine never reads mutable session state.
type SubmissionEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	UserID      string    `json:"user_id"`
	Answers     []Answer  `json:"answers"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Valid reports whether the event carries every required field. Envelopes
// failing this check are poison messages and are never retried.
func (e SubmissionEvent) Valid() bool {
	return e.SessionID != uuid.Nil && e.ExamID != uuid.Nil && e.UserID != "" && !e.SubmittedAt.IsZero()
}

// ScoreEvent is the payload of a score.calculated envelope.
type ScoreEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	UserID     string    `json:"user_id"`
	TotalScore int       `json:"total_score"`
	MaxScore   int       `json:"max_score"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	ComputedAt time.Time `json:"computed_at"`
}

// Valid reports whether the event carries every required field.
func (e ScoreEvent) Valid() bool {
	return e.SessionID != uuid.Nil && e.ExamID != uuid.Nil && e.UserID != "" && !e.ComputedAt.IsZero()
}

// OutboxEntry is one row of the transactional outbox awaiting delivery.
type OutboxEntry struct {
	Seq       int64
	SessionID uuid.UUID
	Envelope  EventEnvelope
}
