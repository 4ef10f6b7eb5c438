package common

import "errors"

var (
	// request errors
	ErrInvalidInput = errors.New("invalid input")

	// credential errors
	ErrDuplicateUsername  = errors.New("username exists")
	ErrInvalidCredentials = errors.New("invalid password")

	// repository errors
	ErrNotFound       = errors.New("not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrStorageFailure = errors.New("storage failure")

	// stored text that no longer parses as JSON
	ErrCorruptValue = errors.New("corrupt value")
)
