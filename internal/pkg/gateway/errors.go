package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransferNotFound is returned by LookupTransfer when the gateway has no
// transfer under the idempotency key.
var ErrTransferNotFound = errors.New("transfer not found")

// ValidationError is a permanent rejection: bad destination, bad amount,
// account closed on the gateway side. Never retried.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway rejected transfer (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway rejected transfer: %s", e.Message)
}

// TransientError covers timeouts, 5xx responses and network failures. The
// outcome is unknown; callers may retry under the same idempotency key or
// resolve the true state via LookupTransfer.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient gateway error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transient gateway error: %s", e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a permanent gateway rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err may be retried. Context deadline errors
// count: the call may have reached the gateway.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
