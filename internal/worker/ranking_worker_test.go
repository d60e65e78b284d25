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
)

// fakeLeaderboard keys entries by session id, mirroring the ZADD replace
// semantics of the Redis implementation.
type fakeLeaderboard struct {
	mu      sync.Mutex
	entries map[uuid.UUID]model.ScoreEvent
	records int
	// FailNext makes the next record fail with the given error.
	FailNext error
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{entries: make(map[uuid.UUID]model.ScoreEvent)}
}

func (l *fakeLeaderboard) Record(_ context.Context, ev model.ScoreEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.FailNext; err != nil {
		l.FailNext = nil
		return err
	}
	l.entries[ev.SessionID] = ev
	l.records++
	return nil
}

func scoreEnvelope(t *testing.T, sessionID uuid.UUID, percentage float64) model.EventEnvelope {
	t.Helper()
	env, err := model.NewEnvelope(model.TopicScoreCalculated, model.ScoreEvent{
		SessionID:  sessionID,
		ExamID:     uuid.New(),
		UserID:     "user-1",
		TotalScore: int(percentage),
		MaxScore:   100,
		Percentage: percentage,
		Passed:     percentage >= 70,
		ComputedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return env
}

func TestRankingHandleRecordsOnce(t *testing.T) {
	board := newFakeLeaderboard()
	ledger := memory.NewLedger()
	w := NewRankingWorker(nil, ledger, board, zerolog.Nop())

	env := scoreEnvelope(t, uuid.New(), 85)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.handle(ctx, env))
	}

	assert.Equal(t, 1, board.records, "duplicate deliveries are filtered by the ledger")
	assert.Len(t, board.entries, 1)
}

func TestRankingHandleRegradeReplacesEntry(t *testing.T) {
	board := newFakeLeaderboard()
	w := NewRankingWorker(nil, memory.NewLedger(), board, zerolog.Nop())

	sessionID := uuid.New()
	ctx := context.Background()
	require.NoError(t, w.handle(ctx, scoreEnvelope(t, sessionID, 40)))
	require.NoError(t, w.handle(ctx, scoreEnvelope(t, sessionID, 90)))

	require.Len(t, board.entries, 1, "a regraded session keeps a single entry")
	assert.Equal(t, 90.0, board.entries[sessionID].Percentage)
}

func TestRankingHandleRecordFailureRetries(t *testing.T) {
	board := newFakeLeaderboard()
	ledger := memory.NewLedger()
	w := NewRankingWorker(nil, ledger, board, zerolog.Nop())

	env := scoreEnvelope(t, uuid.New(), 85)
	ctx := context.Background()

	board.FailNext = errors.New("redis timeout")
	require.Error(t, w.handle(ctx, env), "a failed record must be requeued")

	done, err := ledger.AlreadyProcessed(ctx, ConsumerRanking, env.ID)
	require.NoError(t, err)
	assert.False(t, done, "no claim is taken for an unrecorded event")

	require.NoError(t, w.handle(ctx, env))
	assert.Len(t, board.entries, 1)
}

func TestRankingHandleDropsPoison(t *testing.T) {
	board := newFakeLeaderboard()
	w := NewRankingWorker(nil, memory.NewLedger(), board, zerolog.Nop())
	ctx := context.Background()

	wrongType := scoreEnvelope(t, uuid.New(), 85)
	wrongType.Type = model.TopicSessionSubmitted
	assert.NoError(t, w.handle(ctx, wrongType), "poison is dropped, never requeued")

	undecodable := scoreEnvelope(t, uuid.New(), 85)
	undecodable.Payload = []byte(`{"session_id": false}`)
	assert.NoError(t, w.handle(ctx, undecodable))

	assert.Empty(t, board.entries)
}
