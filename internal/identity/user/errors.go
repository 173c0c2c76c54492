package user

import "errors"

var (
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrNameTooShort        = errors.New("first and last name must be at least 2 characters")
	ErrPasswordTooShort    = errors.New("password must be at least 6 characters")
	ErrInvalidPasswordHash = errors.New("invalid password hash")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailConflict       = errors.New("email is already registered")
	ErrNotFound            = errors.New("user not found")
	ErrForbidden           = errors.New("operation not permitted on another user")
)
