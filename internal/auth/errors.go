package auth

import "errors"

var (
	// ErrInvalidCredentials covers every credential failure without
	// distinguishing the cause, so responses cannot be used to enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUnverifiedEmail rejects federated identities whose provider has not
	// verified the email address.
	ErrUnverifiedEmail = errors.New("auth: email not verified by provider")

	ErrConflict     = errors.New("auth: already exists")
	ErrNotFound     = errors.New("auth: not found")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrInvalidToken indicates a structurally broken or otherwise
	// unverifiable token; ErrTokenExpired is kept distinct because callers
	// surface different messages for the two cases.
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)
