package model

import "errors"

var (
	// ErrExamNotFound is returned when the exam collaborator has no such exam.
	ErrExamNotFound = errors.New("exam not found")
	// ErrSessionNotFound is returned when a session id resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuestionNotFound indicates a submitted question id is not part of the exam.
	ErrQuestionNotFound = errors.New("question not found in exam")
	// ErrInvalidState is returned for transitions that are illegal in the
	// session's current status. Never retriable.
	ErrInvalidState = errors.New("operation not allowed in current session state")
	// ErrNotOwner is returned when a caller touches a session they do not own.
	ErrNotOwner = errors.New("session belongs to another user")
	// ErrScoreNotFound indicates grading has not produced a record yet.
	ErrScoreNotFound = errors.New("score record not available")
)
