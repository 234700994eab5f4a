package storage

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrStorageClosed   = errors.New("storage is closed")
	ErrSnapshotCorrupt = errors.New("snapshot is corrupt")

	ErrTransactionNotActive    = errors.New("transaction is not active")
	ErrTransactionAlreadyEnded = errors.New("transaction has already been committed or rolled back")
)

// StorageError provides structured error information for storage operations.
type StorageError struct {
	Op      string // Operation that failed (e.g., "CreateNode", "Commit")
	Entity  string // Entity type (e.g., "node", "edge", "snapshot")
	ID      uint64 // Entity ID (if applicable)
	Cause   error
	Context string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Entity, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NodeNotFoundError creates a node not found error.
func NodeNotFoundError(op string, nodeID uint64) error {
	return &StorageError{Op: op, Entity: "node", ID: nodeID, Cause: ErrNodeNotFound}
}

// EdgeNotFoundError creates an edge not found error.
func EdgeNotFoundError(op string, edgeID uint64) error {
	return &StorageError{Op: op, Entity: "edge", ID: edgeID, Cause: ErrEdgeNotFound}
}

// SnapshotError wraps a persistence failure with the snapshot path.
func SnapshotError(op, path string, cause error) error {
	return &StorageError{Op: op, Entity: "snapshot", Context: path, Cause: cause}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}

// IsClosed returns true if the error indicates the storage is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrStorageClosed)
}
