package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidQuote  = errors.New("invalid quote")
	ErrStaleQuote    = errors.New("quote too old")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
	ErrNoEmbedder    = errors.New("embedding service unavailable")
)
