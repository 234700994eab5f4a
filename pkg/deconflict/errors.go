package deconflict

import (
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Error kinds returned by the services
var (
	ErrInputInvalid         = errors.New("input invalid")
	ErrConnectivity         = errors.New("graph store unreachable")
	ErrUnauthorized         = errors.New("requester does not manage the project")
	ErrConsistencyViolation = errors.New("graph state inconsistent")
	ErrTransactionAborted   = errors.New("transaction aborted")
	ErrProjectNotCreated    = errors.New("project not created")
	ErrNotFound             = errors.New("not found")
)

// OpError provides structured error information for service operations.
type OpError struct {
	Op    string // Operation that failed (e.g., "CreateProject")
	Kind  error  // One of the sentinels above
	Cause error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Cause == nil || e.Cause == e.Kind {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *OpError) Unwrap() error {
	return e.Cause
}

// Is matches the error kind; the cause is matched through Unwrap.
func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

func opError(op string, kind, cause error) error {
	return &OpError{Op: op, Kind: kind, Cause: cause}
}

// storeError classifies a store failure.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case store.IsUnavailable(err):
		return opError(op, ErrConnectivity, err)
	case errors.Is(err, store.ErrNotFound):
		return opError(op, ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// IsConnectivity reports whether err means the store could not be reached.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}
