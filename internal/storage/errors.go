package storage

import "errors"

// ErrNotFound is returned when no journal record has the requested ID
var ErrNotFound = errors.New("recommendation not found")
