package model

import (
	"github.com/google/uuid"
)

// ExamDefinition is the read contract served by the exam collaborator.
// The core never mutates exams; it only needs enough to validate a start
// and to time out abandoned sessions.
type ExamDefinition struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	QuestionIDs     []uuid.UUID `json:"question_ids"`
	DurationMinutes int         `json:"duration_minutes"`
	// PassThreshold overrides the configured default when set.
	PassThreshold *float64 `json:"pass_threshold,omitempty"`
}

// QuestionKey is the correctness record for one question, as served by the
// question-bank collaborator. CorrectOptions is sorted ascending.
type QuestionKey struct {
	QuestionID     uuid.UUID `json:"question_id"`
	Points         int       `json:"points"`
	CorrectOptions []int     `json:"correct_options"`
}
