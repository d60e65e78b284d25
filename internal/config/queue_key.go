package config

// QueueKeyStruct names the Redis lists that connect producers to the
// background consumers. One list per event topic.
type QueueKeyStruct struct {
	SessionStartedQueue   string
	SessionSubmittedQueue string
	ScoreCalculatedQueue  string
}

var QueueKey = &QueueKeyStruct{
	SessionStartedQueue:   "events:session_started",
	SessionSubmittedQueue: "events:session_submitted",
	ScoreCalculatedQueue:  "events:score_calculated",
}

// ForTopic maps an event topic to its delivery queue. Unknown topics map
// to the empty string so callers can reject them explicitly.
func (q *QueueKeyStruct) ForTopic(topic string) string {
	switch topic {
	case "session.started":
		return q.SessionStartedQueue
	case "session.submitted":
		return q.SessionSubmittedQueue
	case "score.calculated":
		return q.ScoreCalculatedQueue
	default:
		return ""
	}
}
