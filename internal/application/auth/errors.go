package auth

import "errors"

var (
	ErrEmailPasswordRequired = errors.New("Email and password are required")
	ErrInvalidEmailFormat    = errors.New("Invalid email format")
	ErrWeakPassword          = errors.New("Password should be at least 6 characters")
	ErrEmailTaken            = errors.New("Email already registered")
	ErrInvalidEmail          = errors.New("Invalid Email")
	ErrIncorrectPassword     = errors.New("Incorrect Password")
	ErrNotAuthenticated      = errors.New("Not authenticated")
)
