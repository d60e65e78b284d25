package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/model"
)

// tieHorizon is an upper bound on computed-at Unix timestamps used to invert
// the tie component. 2^32 seconds is past the year 2100.
const tieHorizon = float64(1 << 32)

// LeaderboardRepository maintains per-exam rankings in a Redis sorted set.
// The member is the session id, so recording the same session again replaces
// its entry instead of appending a duplicate.
type LeaderboardRepository struct {
	rdb *redis.Client
	// tieEarliestFirst ranks the earlier computed score first on equal
	// percentages; false ranks the later one first.
	tieEarliestFirst bool
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(rdb *redis.Client, tieEarliestFirst bool) *LeaderboardRepository {
	return &LeaderboardRepository{rdb: rdb, tieEarliestFirst: tieEarliestFirst}
}

// Record upserts one session's ranked entry. The ZADD and the detail hash
// are sent in one transactional pipeline.
func (r *LeaderboardRepository) Record(ctx context.Context, ev model.ScoreEvent) error {
	examID := ev.ExamID.String()
	sessionID := ev.SessionID.String()

	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, config.CacheKey.LeaderboardKey(examID), redis.Z{
		Score:  r.rankScore(ev.Percentage, ev.ComputedAt),
		Member: sessionID,
	})
	pipe.HSet(ctx, config.CacheKey.LeaderboardEntryKey(examID, sessionID), map[string]any{
		"user_id":     ev.UserID,
		"percentage":  ev.Percentage,
		"passed":      strconv.FormatBool(ev.Passed),
		"computed_at": ev.ComputedAt.UTC().Format(time.RFC3339Nano),
	})
	_, err := pipe.Exec(ctx)
	return err
}

// Top returns the highest-ranked entries for an exam.
func (r *LeaderboardRepository) Top(ctx context.Context, examID uuid.UUID, limit int64) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	members, err := r.rdb.ZRevRange(ctx, config.CacheKey.LeaderboardKey(examID.String()), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(members))
	for i, member := range members {
		sessionID, err := uuid.Parse(member)
		if err != nil {
			continue // Skip corrupt members rather than failing the board
		}
		fields, err := r.rdb.HGetAll(ctx, config.CacheKey.LeaderboardEntryKey(examID.String(), member)).Result()
		if err != nil {
			return nil, err
		}
		entry := model.LeaderboardEntry{
			Rank:      i + 1,
			SessionID: sessionID,
			UserID:    fields["user_id"],
		}
		if v, err := strconv.ParseFloat(fields["percentage"], 64); err == nil {
			entry.Percentage = v
		}
		if v, err := strconv.ParseBool(fields["passed"]); err == nil {
			entry.Passed = v
		}
		if v, err := time.Parse(time.RFC3339Nano, fields["computed_at"]); err == nil {
			entry.ComputedAt = v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// rankScore encodes percentage-descending order with a timestamp tie-break
// into a single sorted-set score. Percentages are kept to two decimals, so
// the tie component is scaled into [0, 0.01) and can never reorder entries
// with different percentages.
func (r *LeaderboardRepository) rankScore(percentage float64, computedAt time.Time) float64 {
	ts := float64(computedAt.Unix())
	if ts < 0 {
		ts = 0
	}
	if ts > tieHorizon {
		ts = tieHorizon
	}
	tie := ts / tieHorizon
	if r.tieEarliestFirst {
		tie = 1 - tie
	}
	return percentage + 0.01*tie
}
