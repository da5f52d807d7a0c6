package repository

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable wraps store failures that are not domain outcomes
// (not-found, already-used): connectivity loss, timeouts, unexpected driver
// errors. Callers match on it to surface infrastructure trouble instead of
// a client error.
var ErrStoreUnavailable = errors.New("store unavailable")

func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
