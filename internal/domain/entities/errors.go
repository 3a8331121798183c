package entities

import "errors"

// Pipeline failure classes. Callers wrap them with context and classify with errors.Is.
var (
	// ErrAuthFailure aborts the whole run
	ErrAuthFailure = errors.New("authentication failure")

	// ErrFetchFailure stops processing of the current project
	ErrFetchFailure = errors.New("fetch failure")

	// ErrParseFailure stops processing of the current project
	ErrParseFailure = errors.New("parse failure")

	// ErrUnknownSeverity aborts the whole run
	ErrUnknownSeverity = errors.New("unknown severity")

	// ErrPollTimeout stops processing of the current project
	ErrPollTimeout = errors.New("report poll timeout")
)

// IsFatal reports whether err must stop the entire run
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailure) || errors.Is(err, ErrUnknownSeverity)
}
