package proposal

import (
	"errors"

	"offload/internal/openai"
)

// ErrPrecondition marks missing or invalid generation input. No
// upstream call is made when this is returned.
var ErrPrecondition = errors.New("invalid generation input")

// ErrContractViolation marks upstream output that cannot be coerced
// into an acceptable envelope: unparseable text, a missing proposal
// field, a schema mismatch, or a price outside the bounds.
var ErrContractViolation = errors.New("generated output violates the proposal contract")

// ServiceError wraps a transport or upstream failure from the
// generation service.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string { return "generation service failure: " + e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// StatusCode returns the upstream HTTP status when the service
// replied with one, or 0 for transport-level failures.
func (e *ServiceError) StatusCode() int {
	var he *openai.HTTPError
	if errors.As(e.Err, &he) {
		return he.StatusCode
	}
	return 0
}
