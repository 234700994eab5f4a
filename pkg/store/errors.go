package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps transport, pool and timeout failures.
	ErrUnavailable = errors.New("graph store unavailable")
	// ErrVendorEngaged is returned by CreateEngagement when the vendor
	// already has an active engagement at write time.
	ErrVendorEngaged = errors.New("vendor already has an active engagement")
	// ErrNotFound is returned when a node a write depends on does not exist.
	ErrNotFound = errors.New("node not found")
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already committed or rolled back")
	// ErrUnsupported is returned by optional operations the backend lacks.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Unavailable marks err as a connectivity failure, keeping it in the chain.
func Unavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsUnavailable reports whether err is a connectivity failure. Context
// deadlines count as connectivity failures.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
