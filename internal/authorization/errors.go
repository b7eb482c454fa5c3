package authorization

import "errors"

var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidActor       = errors.New("invalid_actor")
	ErrInvalidObject      = errors.New("invalid_object")
	ErrInvalidAction      = errors.New("invalid_action")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrNotConfigured      = errors.New("operator_auth_not_configured")
)
