package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAccessDenied     = errors.New("not a participant of this conversation")
	ErrConflict         = errors.New("resource already exists")
	ErrInvalidInput     = errors.New("invalid input")

	// ErrFetchFailed marks a transient read failure; the caller may retry.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrSendFailed marks a failed message send (or a failed creation of
	// its prerequisite conversation); the typed content should be kept for
	// retry.
	ErrSendFailed = errors.New("send failed")
	// ErrSelfConversation rejects an attempt to open a conversation with
	// oneself.
	ErrSelfConversation = errors.New("cannot message yourself")
	// ErrMalformedRow marks a stored row missing required columns; mapping
	// fails fast instead of defaulting.
	ErrMalformedRow = errors.New("malformed row")
)
