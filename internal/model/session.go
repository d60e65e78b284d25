package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates quiz session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
)

// Answer is one retained answer within a session. A session keeps at most
// one Answer per question; a later submission for the same question
// replaces the earlier one.
type Answer struct {
	QuestionID uuid.UUID `json:"question_id"`
	// Selected holds the chosen option indices, sorted ascending.
	// Single-choice questions carry exactly one index.
	Selected   []int     `json:"selected"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Session represents one user's single attempt at one exam.
// Once Status is SUBMITTED the answer set is immutable.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	UserID      string        `json:"user_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	Answers     []Answer      `json:"answers"`
}

// StartSessionRequest is the payload for starting a new attempt.
type StartSessionRequest struct {
	ExamID string `json:"exam_id" binding:"required,uuid"`
}

// SubmitAnswerRequest is the payload for recording one answer.
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Selected   []int  `json:"selected" binding:"required,min=1,dive,gte=0"`
}
