package flux

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass separates failures the scheduler may retry from those it must not.
type ErrorClass string

const (
	// ClassTransient covers network failures, timeouts, HTTP 429 and 5xx.
	ClassTransient ErrorClass = "TRANSIENT"
	// ClassPermanent covers rejected requests: auth failures, invalid
	// parameters, moderation, any other 4xx, and a Failed task status.
	ClassPermanent ErrorClass = "PERMANENT"
)

// Error is a classified failure from the generation service.
type Error struct {
	Class   ErrorClass
	Op      string // submit, poll, download
	Status  int    // HTTP status when applicable, else 0
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status > 0:
		return fmt.Sprintf("flux: %s: %s (http %d)", e.Op, e.Message, e.Status)
	case e.Message != "":
		return fmt.Sprintf("flux: %s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("flux: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("flux: %s failed", e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Class == ClassPermanent
}

// IsTransient reports whether a retry could plausibly succeed. Cancellation is
// neither transient nor permanent; it is handled before classification.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class == ClassTransient
	}
	// Unclassified failures (transport errors, deadline expiry) are worth
	// one more attempt.
	return true
}

func classifyStatus(status int) ErrorClass {
	if status == 429 || status >= 500 {
		return ClassTransient
	}
	return ClassPermanent
}
