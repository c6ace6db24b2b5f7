package narration

import "errors"

// Turn failure taxonomy. Only ErrNoBackend, ErrTurnInProgress and context
// errors cross the [Controller.Evaluate] boundary; every other failure is
// logged and reported as "nothing to say".
var (
	// ErrTransport wraps a provider or network error. It ends the turn
	// without a retry unless it also matches ErrCallTimeout.
	ErrTransport = errors.New("narration: transport failure")

	// ErrCallTimeout marks a transport call that ran out of its per-call
	// deadline while the turn itself was still live. Such calls are retried.
	ErrCallTimeout = errors.New("narration: call timeout")

	// ErrEmptyResponse means the backend reply was empty after extraction.
	ErrEmptyResponse = errors.New("narration: empty response")

	// ErrEmptyOutput means the spoken text was empty after cleanup.
	ErrEmptyOutput = errors.New("narration: empty output")

	// ErrMalformedOutput means the reply looked like JSON but did not decode.
	ErrMalformedOutput = errors.New("narration: malformed output")

	// ErrRepetitive is the repetition veto: the candidate is too close to the
	// last accepted line.
	ErrRepetitive = errors.New("narration: repetitive output")

	// ErrInvalidPenaltyInput means one of the penalty inputs was absent.
	ErrInvalidPenaltyInput = errors.New("narration: invalid penalty input")

	// ErrNoBackend means there is no active profile or it has no model.
	ErrNoBackend = errors.New("narration: no backend configured")

	// ErrTurnInProgress is returned when a session is asked to run a second
	// concurrent turn.
	ErrTurnInProgress = errors.New("narration: turn already in progress")
)
