package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by IssueToken for an unknown username
	// or a wrong password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers malformed, forged, expired or subject-less tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownUser is returned when a valid token names a subject that no
	// longer has a credential record.
	ErrUnknownUser = errors.New("unknown user")
)
