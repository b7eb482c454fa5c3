package paygate

import "errors"

var (
	ErrUnknownRedirectType = errors.New("unknown_redirect_type")
	ErrOrderMismatch       = errors.New("order_record_mismatch")
	ErrCheckoutUnavailable = errors.New("checkout_unavailable")
)
