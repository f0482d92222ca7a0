package shared

import "errors"

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials indicates a failed login attempt.
var ErrInvalidCredentials = errors.New("invalid credentials")
