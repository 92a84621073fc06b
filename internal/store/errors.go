package store

import "errors"

// ErrNoRow is returned by lookups that match nothing. Callers translate it
// into their own not-found kinds.
var ErrNoRow = errors.New("no such row")
