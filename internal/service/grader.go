package service

import (
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/examflow/examflow-backend/internal/model"
)

// GradePolicy configures score computation.
type GradePolicy struct {
	// PassThreshold is the minimum percentage that counts as passed.
	PassThreshold float64
	// CountUnansweredInMax includes every exam question's points in the
	// maximum score even when the taker never answered it. Off by default;
	// see DESIGN.md for the open policy question.
	CountUnansweredInMax bool
}

// GradeOutcome is the result of grading one answer set.
type GradeOutcome struct {
	TotalScore int
	MaxScore   int
	Percentage float64
	Passed     bool
}

// Grade computes a deterministic score for a submitted answer set. An answer
// earns the question's full points only when its selection exactly matches
// the correct option set; multi-select answers earn no partial credit. With
// CountUnansweredInMax off, only answered questions contribute to either the
// numerator or the denominator. A zero maximum grades as 0%, never a
// division fault.
func Grade(answers []model.Answer, keys map[uuid.UUID]model.QuestionKey, policy GradePolicy) GradeOutcome {
	var out GradeOutcome

	answered := make(map[uuid.UUID]bool, len(answers))
	for _, ans := range answers {
		key, ok := keys[ans.QuestionID]
		if !ok {
			continue // Callers resolve missing keys before grading
		}
		if answered[ans.QuestionID] {
			continue // The store retains one answer per question; be safe anyway
		}
		answered[ans.QuestionID] = true
		if !policy.CountUnansweredInMax {
			out.MaxScore += key.Points
		}
		if slices.Equal(ans.Selected, key.CorrectOptions) {
			out.TotalScore += key.Points
		}
	}

	if policy.CountUnansweredInMax {
		for _, key := range keys {
			out.MaxScore += key.Points
		}
	}

	if out.MaxScore > 0 {
		out.Percentage = roundPercent(float64(out.TotalScore) / float64(out.MaxScore) * 100)
	}
	out.Passed = out.MaxScore > 0 && out.Percentage >= policy.PassThreshold
	return out
}

// roundPercent keeps percentages to two decimals.
func roundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}
