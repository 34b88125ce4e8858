package chatstore

import "errors"

var (
	// ErrNotFound covers both an absent chat and a chat owned by someone
	// else. The two are deliberately indistinguishable so the existence of
	// another user's chat is never observable.
	ErrNotFound = errors.New("chatstore: chat not found")

	// ErrConflict means the chat already has an in-progress message; the
	// caller should poll and retry once it turns terminal.
	ErrConflict = errors.New("chatstore: chat has a message in progress")
)
