package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrJobActive           = errors.New("job claimed by another worker")
	ErrLockHeld            = errors.New("lock already held")
	ErrMalformedPayload    = errors.New("malformed queue payload")
)
