package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/examflow/examflow-backend/internal/model"
)

func answer(qid uuid.UUID, selected ...int) model.Answer {
	return model.Answer{QuestionID: qid, Selected: selected, AnsweredAt: time.Now()}
}

func TestGradeBinaryCreditAndPercentage(t *testing.T) {
	qA, qB := uuid.New(), uuid.New()
	keys := map[uuid.UUID]model.QuestionKey{
		qA: {QuestionID: qA, Points: 1, CorrectOptions: []int{0}},
		qB: {QuestionID: qB, Points: 2, CorrectOptions: []int{1}},
	}

	out := Grade(
		[]model.Answer{answer(qA, 0), answer(qB, 0)},
		keys,
		GradePolicy{PassThreshold: 70},
	)

	assert.Equal(t, 1, out.TotalScore)
	assert.Equal(t, 3, out.MaxScore)
	assert.InDelta(t, 33.33, out.Percentage, 0.001)
	assert.False(t, out.Passed)
}

func TestGradeNoAnswers(t *testing.T) {
	out := Grade(nil, map[uuid.UUID]model.QuestionKey{}, GradePolicy{PassThreshold: 70})

	assert.Equal(t, 0, out.TotalScore)
	assert.Equal(t, 0, out.MaxScore)
	assert.Equal(t, 0.0, out.Percentage)
	assert.False(t, out.Passed)
}

func TestGradeAllCorrectPassesAtAnyThreshold(t *testing.T) {
	qA, qB := uuid.New(), uuid.New()
	keys := map[uuid.UUID]model.QuestionKey{
		qA: {QuestionID: qA, Points: 3, CorrectOptions: []int{2}},
		qB: {QuestionID: qB, Points: 5, CorrectOptions: []int{0, 1}},
	}
	answers := []model.Answer{answer(qA, 2), answer(qB, 0, 1)}

	for _, threshold := range []float64{0, 50, 70, 100} {
		out := Grade(answers, keys, GradePolicy{PassThreshold: threshold})
		assert.Equal(t, 100.0, out.Percentage, "threshold %.0f", threshold)
		assert.True(t, out.Passed, "threshold %.0f", threshold)
	}
}

func TestGradeMultiSelectNoPartialCredit(t *testing.T) {
	q := uuid.New()
	keys := map[uuid.UUID]model.QuestionKey{
		q: {QuestionID: q, Points: 4, CorrectOptions: []int{0, 2}},
	}

	partial := Grade([]model.Answer{answer(q, 0)}, keys, GradePolicy{PassThreshold: 70})
	assert.Equal(t, 0, partial.TotalScore, "partially correct selection earns nothing")

	superset := Grade([]model.Answer{answer(q, 0, 1, 2)}, keys, GradePolicy{PassThreshold: 70})
	assert.Equal(t, 0, superset.TotalScore, "extra options earn nothing")

	exact := Grade([]model.Answer{answer(q, 0, 2)}, keys, GradePolicy{PassThreshold: 70})
	assert.Equal(t, 4, exact.TotalScore)
}

func TestGradeCountUnansweredInMax(t *testing.T) {
	qA, qB := uuid.New(), uuid.New()
	keys := map[uuid.UUID]model.QuestionKey{
		qA: {QuestionID: qA, Points: 1, CorrectOptions: []int{0}},
		qB: {QuestionID: qB, Points: 2, CorrectOptions: []int{1}},
	}
	answers := []model.Answer{answer(qA, 0)} // qB never answered

	skipped := Grade(answers, keys, GradePolicy{PassThreshold: 70})
	assert.Equal(t, 1, skipped.MaxScore, "unanswered questions excluded by default")
	assert.Equal(t, 100.0, skipped.Percentage)

	counted := Grade(answers, keys, GradePolicy{PassThreshold: 70, CountUnansweredInMax: true})
	assert.Equal(t, 3, counted.MaxScore)
	assert.InDelta(t, 33.33, counted.Percentage, 0.001)
}
