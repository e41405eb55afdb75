package auth

import "errors"

// Authentication and authorization failures. Login failures collapse unknown
// email and wrong password into the one ErrInvalidCredentials so responses
// cannot be used to enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrRevokedToken       = errors.New("token has been revoked")
	ErrForbidden          = errors.New("insufficient permissions")
)
