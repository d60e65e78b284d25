package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LeaderboardKey returns the sorted-set key holding an exam's ranking.
func (r *CacheKeyStruct) LeaderboardKey(examID string) string {
	return fmt.Sprintf("exam:%s:leaderboard", examID)
}

// LeaderboardEntryKey returns the hash key holding one session's ranked entry.
func (r *CacheKeyStruct) LeaderboardEntryKey(examID, sessionID string) string {
	return fmt.Sprintf("exam:%s:leaderboard:entry:%s", examID, sessionID)
}

// ResultsChannel returns the Redis PubSub channel for an exam's live score feed.
func (r *CacheKeyStruct) ResultsChannel(examID string) string {
	return fmt.Sprintf("exam:%s:results", examID)
}

var CacheKey = NewCacheKeyStruct()
