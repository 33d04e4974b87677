package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady          = errors.New("session is not ready")
	ErrTerminated        = errors.New("session is terminated")
	ErrAlreadyStarted    = errors.New("session is already started")
	ErrAnswerApplied     = errors.New("remote answer is already applied")
	ErrCandidateRejected = errors.New("ice candidate rejected")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrRevoked           = errors.New("capture revoked")
	ErrHostClosed        = errors.New("host is closed")
)

// Reason classifies why a session has ended without a stop.
type Reason string

const (
	ReasonPermissionDenied   Reason = "permission_denied"
	ReasonAcquireFailed      Reason = "acquire_failed"
	ReasonNegotiationFailed  Reason = "negotiation_failed"
	ReasonExternalRevocation Reason = "external_revocation"
	ReasonEngineError        Reason = "engine_error"
)

// Failure is the terminal error of a session.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%v: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
