package inference

import (
	"errors"
	"fmt"
)

var (
	ErrUpstream        = errors.New("inference_upstream_failure")
	ErrPartialResult   = errors.New("inference_partial_result")
	ErrStaleResult     = errors.New("inference_stale_result")
	ErrImageRequired   = errors.New("inference_image_required")
	ErrNotConfigured   = errors.New("inference_not_configured")
	ErrUnsupportedLine = errors.New("inference_unsupported_line")
)

// CallError is a non-2xx answer from an inference endpoint.
type CallError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("inference %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *CallError) Unwrap() error { return ErrUpstream }
