package archivist

import "errors"

var (
	ErrNotFound = errors.New("vault value not found")
	ErrResult   = errors.New("malformed archivist result")
)
