package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examflow/examflow-backend/internal/model"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func scoreEvent(examID uuid.UUID, userID string, percentage float64, computedAt time.Time) model.ScoreEvent {
	return model.ScoreEvent{
		SessionID:  uuid.New(),
		ExamID:     examID,
		UserID:     userID,
		TotalScore: int(percentage),
		MaxScore:   100,
		Percentage: percentage,
		Passed:     percentage >= 70,
		ComputedAt: computedAt,
	}
}

func TestLeaderboardRecordReplacesSameSession(t *testing.T) {
	repo := NewLeaderboardRepository(newTestRedis(t), true)
	ctx := context.Background()
	examID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	ev := scoreEvent(examID, "user-1", 40, now)
	require.NoError(t, repo.Record(ctx, ev))

	// Regrade of the same session: the entry is replaced, never duplicated.
	ev.Percentage = 85
	ev.Passed = true
	ev.ComputedAt = now.Add(time.Minute)
	require.NoError(t, repo.Record(ctx, ev))

	entries, err := repo.Top(ctx, examID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ev.SessionID, entries[0].SessionID)
	assert.Equal(t, 85.0, entries[0].Percentage)
	assert.True(t, entries[0].Passed)
}

func TestLeaderboardOrdering(t *testing.T) {
	repo := NewLeaderboardRepository(newTestRedis(t), true)
	ctx := context.Background()
	examID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	low := scoreEvent(examID, "low", 60, base)
	tieLate := scoreEvent(examID, "tie-late", 90, base.Add(2*time.Minute))
	tieEarly := scoreEvent(examID, "tie-early", 90, base.Add(time.Minute))

	for _, ev := range []model.ScoreEvent{low, tieLate, tieEarly} {
		require.NoError(t, repo.Record(ctx, ev))
	}

	entries, err := repo.Top(ctx, examID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "tie-early", entries[0].UserID, "earlier equal score ranks first")
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "tie-late", entries[1].UserID)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "low", entries[2].UserID)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestLeaderboardTieLatestFirst(t *testing.T) {
	repo := NewLeaderboardRepository(newTestRedis(t), false)
	ctx := context.Background()
	examID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	first := scoreEvent(examID, "first", 90, base)
	second := scoreEvent(examID, "second", 90, base.Add(time.Minute))
	require.NoError(t, repo.Record(ctx, first))
	require.NoError(t, repo.Record(ctx, second))

	entries, err := repo.Top(ctx, examID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].UserID)
	assert.Equal(t, "first", entries[1].UserID)
}

func TestLeaderboardTopLimit(t *testing.T) {
	repo := NewLeaderboardRepository(newTestRedis(t), true)
	ctx := context.Background()
	examID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		ev := scoreEvent(examID, "user", float64(50+i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Record(ctx, ev))
	}

	entries, err := repo.Top(ctx, examID, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, 54.0, entries[0].Percentage)
}

func TestLeaderboardEmptyExam(t *testing.T) {
	repo := NewLeaderboardRepository(newTestRedis(t), true)

	entries, err := repo.Top(context.Background(), uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
