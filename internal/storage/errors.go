package storage

import "errors"

// Common storage errors
var (
	ErrNotFound      = errors.New("not found")
	ErrKeyMismatch   = errors.New("record key does not match")
	ErrInvalidStatus = errors.New("invalid record status")
)
