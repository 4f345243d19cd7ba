package shared

import "errors"

var (
	// ErrAuthentication covers bad credentials, disabled accounts and unresolvable principals.
	ErrAuthentication = errors.New("authentication failed")
	// ErrForbidden indicates a valid identity without the required roles.
	ErrForbidden = errors.New("forbidden")
	// ErrConfiguration indicates missing signing keys or collaborators at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// Authentication sub-errors. All of them satisfy errors.Is(err, ErrAuthentication).
var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = wrap(ErrAuthentication, "invalid credentials")
	// ErrAccountDisabled indicates the principal was soft-disabled.
	ErrAccountDisabled = wrap(ErrAuthentication, "account disabled")
	// ErrInvalidToken indicates a bad signature, wrong kind or expired token.
	ErrInvalidToken = wrap(ErrAuthentication, "invalid token")
	// ErrTokenRevoked indicates a refresh token removed by logout.
	ErrTokenRevoked = wrap(ErrAuthentication, "token revoked")
	// ErrUnknownPrincipal indicates the token subject no longer resolves to a user.
	ErrUnknownPrincipal = wrap(ErrAuthentication, "unknown principal")
)

type wrappedError struct {
	parent error
	msg    string
}

func wrap(parent error, msg string) error {
	return &wrappedError{parent: parent, msg: msg}
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.parent }
