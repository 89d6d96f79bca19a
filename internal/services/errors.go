package services

import "errors"

// ErrNotFound is returned when a draft, submission or product does not exist for the caller's book.
var ErrNotFound = errors.New("not found")
