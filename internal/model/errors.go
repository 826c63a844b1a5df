package model

import (
	"errors"
	"fmt"
)

// Fault sentinels. Session and auth operations wrap these so callers can
// branch with errors.Is regardless of the added context.
var (
	// ErrInvalidSelection means zero subjects were chosen or the requested
	// question count is outside the allowed range.
	ErrInvalidSelection = errors.New("invalid test selection")

	// ErrInsufficientQuestions means the bank could not satisfy the requested
	// question count for the chosen subjects and difficulty.
	ErrInsufficientQuestions = errors.New("insufficient questions")

	// ErrNoActiveSession means a session operation was invoked without a
	// session in progress.
	ErrNoActiveSession = errors.New("no active test session")

	// ErrDuplicateIdentity means the username or email is already registered.
	ErrDuplicateIdentity = errors.New("username or email already registered")

	// ErrInvalidCredentials means no user matches the identifier and password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExpired means the auth token has expired or the user has been
	// inactive past the timeout.
	ErrSessionExpired = errors.New("session expired")

	// ErrStoreCorrupt means a persisted record failed to parse. Readers that
	// can degrade treat the collection as empty; the stored value is left
	// untouched.
	ErrStoreCorrupt = errors.New("record store corrupt")
)

// ShortfallError reports that a session was started with fewer questions than
// requested. The session is still usable; the caller decides whether a short
// test is acceptable.
type ShortfallError struct {
	Requested int
	Selected  int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("only %d of %d requested questions available", e.Selected, e.Requested)
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientQuestions }
