package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoreRecord is the durable grading outcome for one submitted session.
// Records are immutable: a correction inserts a superseding row pointing
// at the one it replaces, never an UPDATE.
type ScoreRecord struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  uuid.UUID  `json:"session_id"`
	ExamID     uuid.UUID  `json:"exam_id"`
	UserID     string     `json:"user_id"`
	TotalScore int        `json:"total_score"`
	MaxScore   int        `json:"max_score"`
	Percentage float64    `json:"percentage"`
	Passed     bool       `json:"passed"`
	ComputedAt time.Time  `json:"computed_at"`
	Supersedes *uuid.UUID `json:"supersedes,omitempty"`
}

// LeaderboardEntry is one ranked row of an exam's leaderboard.
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	SessionID  uuid.UUID `json:"session_id"`
	UserID     string    `json:"user_id"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	ComputedAt time.Time `json:"computed_at"`
}
