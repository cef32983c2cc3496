package app

import "errors"

var (
	// ErrHostUnreachable is terminal: the creator could not be reached
	// within the configured attempt budget.
	ErrHostUnreachable = errors.New("host unreachable")

	ErrAlreadySharing    = errors.New("screen share already active")
	ErrNotSharing        = errors.New("no screen share active")
	ErrNoScreenSource    = errors.New("no screen source configured")
	ErrNotCreator        = errors.New("only the creator may do this")
	ErrNoParticipants    = errors.New("no participants in the call")
	ErrRecordingInFlight = errors.New("recording already in flight")
	ErrNoRecording       = errors.New("no recording available")
	ErrClosed            = errors.New("orchestrator closed")
)
