package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examflow/examflow-backend/internal/memory"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/service"
)

// fakeQueue records requeued envelopes. FailRequeues makes the next N
// requeue attempts fail to simulate a bus outage.
type fakeQueue struct {
	mu           sync.Mutex
	requeued     []model.EventEnvelope
	attempts     int
	FailRequeues int
}

func (q *fakeQueue) Pop(context.Context, string, time.Duration) (model.EventEnvelope, error) {
	return model.EventEnvelope{}, nil
}

func (q *fakeQueue) Requeue(_ context.Context, _ string, env model.EventEnvelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts++
	if q.FailRequeues > 0 {
		q.FailRequeues--
		return errors.New("connection refused")
	}
	q.requeued = append(q.requeued, env)
	return nil
}

func newScoringWorkerFixture(t *testing.T) (*ScoringWorker, *fakeQueue, *memory.ScoreSink, model.EventEnvelope) {
	t.Helper()

	examID, qA := uuid.New(), uuid.New()
	exam := model.ExamDefinition{ID: examID, Title: "Basics", QuestionIDs: []uuid.UUID{qA}}
	bank := memory.NewQuestionBank(model.QuestionKey{QuestionID: qA, Points: 1, CorrectOptions: []int{0}})
	ledger := memory.NewLedger()
	sink := memory.NewScoreSink(ledger)
	scoring := service.NewScoringService(bank, memory.NewExamDirectory(exam), ledger, sink,
		service.GradePolicy{PassThreshold: 70}, zerolog.Nop())

	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   uuid.New(),
		ExamID:      examID,
		UserID:      "user-1",
		Answers:     []model.Answer{{QuestionID: qA, Selected: []int{0}, AnsweredAt: time.Now().UTC()}},
		SubmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	queue := &fakeQueue{}
	return NewScoringWorker(queue, scoring, zerolog.Nop()), queue, sink, env
}

func TestScoringWorkerAcksSuccess(t *testing.T) {
	w, queue, sink, env := newScoringWorkerFixture(t)

	w.handle(context.Background(), env)

	assert.Len(t, sink.Records(), 1)
	assert.Empty(t, queue.requeued)
}

func TestScoringWorkerRequeuesTransient(t *testing.T) {
	w, queue, sink, env := newScoringWorkerFixture(t)
	sink.FailNext = context.DeadlineExceeded

	w.handle(context.Background(), env)

	require.Len(t, queue.requeued, 1, "transient failures go back on the queue")
	assert.Equal(t, env.ID, queue.requeued[0].ID)

	// The redelivered envelope succeeds once the sink recovers.
	w.handle(context.Background(), queue.requeued[0])
	assert.Len(t, sink.Records(), 1)
}

func TestScoringWorkerRequeueSurvivesBusOutage(t *testing.T) {
	w, queue, sink, env := newScoringWorkerFixture(t)
	sink.FailNext = context.DeadlineExceeded
	queue.FailRequeues = 2

	w.handle(context.Background(), env)

	require.Len(t, queue.requeued, 1, "the requeue must outlast a bus outage, not give up")
	assert.Equal(t, 3, queue.attempts)
	assert.Equal(t, env.ID, queue.requeued[0].ID)

	w.handle(context.Background(), queue.requeued[0])
	assert.Len(t, sink.Records(), 1)
}

func TestRequeueWithRetryStopsOnShutdown(t *testing.T) {
	queue := &fakeQueue{FailRequeues: 1 << 30}
	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   uuid.New(),
		ExamID:      uuid.New(),
		UserID:      "user-1",
		SubmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = requeueWithRetry(ctx, queue, "q", env, zerolog.Nop())
	assert.Error(t, err, "only shutdown may interrupt the requeue")
	assert.Empty(t, queue.requeued)
}

func TestScoringWorkerDropsPoison(t *testing.T) {
	w, queue, sink, env := newScoringWorkerFixture(t)
	env.Payload = []byte(`not json`)

	w.handle(context.Background(), env)

	assert.Empty(t, queue.requeued, "poison is never requeued")
	assert.Empty(t, sink.Records())
}
