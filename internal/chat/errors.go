package chat

import (
	"context"
	"errors"

	"github.com/iudanet/gophchat/internal/server/storage"
)

var (
	// ErrUnknownSession is returned for missing sessions and for sessions
	// owned by somebody else.
	ErrUnknownSession = storage.ErrUnknownSession

	// ErrSessionLimit is returned when no new session can be created.
	ErrSessionLimit = storage.ErrSessionLimit

	// ErrInvalidMessage is returned when the user message fails validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrMalformedUpstreamResponse is returned when the completion service
	// answered without usable text.
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
)

// UpstreamError wraps a completion service failure. Message is safe to show
// to the end user, Err is for the server log only.
type UpstreamError struct {
	Err     error
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func newUpstreamError(err error) *UpstreamError {
	msg := "The assistant is unavailable right now, please try again later."
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "The assistant took too long to answer, please try again."
	}
	return &UpstreamError{Message: msg, Err: err}
}
