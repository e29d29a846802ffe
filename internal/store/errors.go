package store

import "errors"

// ErrNotFound is returned when a record does not exist, or when it exists but
// belongs to a different owner. The two cases are deliberately
// indistinguishable to callers.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registration collides with an existing
// email. Backends enforce this atomically with respect to concurrent inserts.
var ErrDuplicateEmail = errors.New("email already registered")
