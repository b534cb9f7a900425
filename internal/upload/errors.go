package upload

import (
	"errors"
	"fmt"
)

type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseChunk   Phase = "chunk"
	PhaseFinish  Phase = "finish"
	PhasePoll    Phase = "poll"
	PhasePublish Phase = "publish"
)

var (
	ErrInvalidRequest  = errors.New("invalid upload request")
	ErrMissingField    = errors.New("missing required field")
	ErrRetriesExceeded = errors.New("retry budget exhausted")
	ErrResyncLoop      = errors.New("offset resync did not converge")
	ErrPollLimit       = errors.New("status poll limit reached")
	ErrMediaFailed     = errors.New("media processing failed")
	ErrUnknownStatus   = errors.New("unrecognized media status")
)

// PhaseError is a fatal failure of one protocol phase.
type PhaseError struct {
	Phase   Phase
	Status  int    // HTTP status, 0 when no response was received
	Code    string // remote error type or status value
	Message string // remote-reported message
	Err     error
}

func (e *PhaseError) Error() string {
	msg := fmt.Sprintf("instagram %s failed", e.Phase)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PhaseError) Unwrap() error { return e.Err }

// PhaseOf reports the failed phase of err, if it carries one.
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}
