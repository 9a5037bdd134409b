package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotInitialized   = errors.New("pair addresses not initialized")
	ErrPairMismatch     = errors.New("token pair does not match actor binding")
	ErrUnknownMethod    = errors.New("unknown method")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrContextDone      = errors.New("context cancelled")
)
