package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrInvalidOrder     = errors.New("invalid_order")
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrAmountMismatch   = errors.New("amount_mismatch")
	ErrOrderFailed      = errors.New("order_failed")
	ErrGatewayFailure   = errors.New("gateway_failure")
)

// GatewayError carries the gateway's own rejection code. Rejections are
// final; transport failures are reported as ErrGatewayFailure instead.
type GatewayError struct {
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected payment (%d %s): %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether repeating the same call may succeed.
func (e *GatewayError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429
}

// IsRetryable reports whether a gateway call is worth repeating.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable()
	}
	return errors.Is(err, ErrGatewayFailure)
}
