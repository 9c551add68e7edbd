package tmdb

import (
	"errors"
	"fmt"
)

// Terminal errors. Neither is worth retrying: a 404 means the item no longer
// exists upstream, a 401 means every subsequent call will fail the same way.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("invalid API credential")
)

// StatusError is a transient HTTP failure (429, 5xx, unexpected status).
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: %s returned HTTP %d", e.Endpoint, e.StatusCode)
}
