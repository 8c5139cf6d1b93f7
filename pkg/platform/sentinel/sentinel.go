// Package sentinel lists the facts stores and adapters report about the
// data they hold. The coordinator is the only layer that turns them into
// domain error codes; validation failures use pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound: the container, invoice or catalog entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a versioned invoice write lost to a concurrent writer.
	// The whole unit of work may be retried.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyUsed: a unique key (container code) is taken.
	ErrAlreadyUsed = errors.New("already used")
)
