// Package audit records what the deconfliction workflows did, for whom and with
// which outcome.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action types for audit events
type Action string

const (
	ActionCreateProject Action = "create_project"
	ActionRequestVendor Action = "request_vendor"
	ActionNotify        Action = "notify_conflict"
	ActionSeed          Action = "seed"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceProject ResourceType = "project"
	ResourceVendor  ResourceType = "vendor"
	ResourceUser    ResourceType = "user"
)

// Status is success unless the action returned an error
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Event represents a single audit log entry
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Username     string         `json:"username,omitempty"`
	Action       Action         `json:"action"`
	ResourceType ResourceType   `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Outcome      string         `json:"outcome,omitempty"`
	Status       Status         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current time
func NewEvent(username string, action Action, resourceType ResourceType, resourceID string) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Username:     username,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
	}
}

// WithError marks the event failed. A nil err leaves it unchanged.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Status = StatusFailure
		e.ErrorMessage = err.Error()
	}
	return e
}

// With attaches a metadata entry
func (e *Event) With(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// String returns a human-readable representation of an event
func (e *Event) String() string {
	s := fmt.Sprintf("[%s] %s %s %s %s",
		e.Timestamp.Format(time.RFC3339), e.Username, e.Action, e.ResourceType, e.ResourceID)
	if e.Outcome != "" {
		s += " -> " + e.Outcome
	}
	if e.Status == StatusFailure {
		s += " (failed: " + e.ErrorMessage + ")"
	}
	return s
}

// Filter represents filtering criteria for audit events
type Filter struct {
	Username     string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	Outcome      string
	Status       Status
	StartTime    *time.Time
	EndTime      *time.Time
}

// Matches reports whether the event passes every set criterion
func (f *Filter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	switch {
	case f.Username != "" && e.Username != f.Username:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.Outcome != "" && e.Outcome != f.Outcome:
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case f.StartTime != nil && e.Timestamp.Before(*f.StartTime):
		return false
	case f.EndTime != nil && e.Timestamp.After(*f.EndTime):
		return false
	}
	return true
}

// Logger is implemented by every audit sink.
type Logger interface {
	Log(event *Event) error
	GetEventCount() int64
}

// AuditLogger keeps the most recent events in a circular buffer
type AuditLogger struct {
	events     []*Event
	bufferSize int
	index      int
	count      int
	mu         sync.RWMutex
}

// NewAuditLogger creates a new audit logger with specified buffer size
func NewAuditLogger(bufferSize int) *AuditLogger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &AuditLogger{
		events:     make([]*Event, bufferSize),
		bufferSize: bufferSize,
	}
}

// Log records an audit event, overwriting the oldest once the buffer is full
func (l *AuditLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	l.events[l.index] = event
	l.index = (l.index + 1) % l.bufferSize
	if l.count < l.bufferSize {
		l.count++
	}
	return nil
}

// GetEvents returns stored events, oldest first, that match filter
func (l *AuditLogger) GetEvents(filter *Filter) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Event, 0, l.count)
	for i := 0; i < l.count; i++ {
		idx := (l.index - l.count + i + l.bufferSize) % l.bufferSize
		if event := l.events[idx]; event != nil && filter.Matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// GetRecentEvents returns the n most recent events, newest first
func (l *AuditLogger) GetRecentEvents(n int) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > l.count {
		n = l.count
	}
	result := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.index - 1 - i + l.bufferSize) % l.bufferSize
		if l.events[idx] != nil {
			result = append(result, l.events[idx])
		}
	}
	return result
}

// GetEventCount returns the number of events currently stored
func (l *AuditLogger) GetEventCount() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(l.count)
}

// Clear removes all events
func (l *AuditLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = make([]*Event, l.bufferSize)
	l.index = 0
	l.count = 0
}

// Tee fans each event out to every logger and joins their errors.
type Tee []Logger

func (t Tee) Log(event *Event) error {
	var errs []error
	for _, l := range t {
		if err := l.Log(event); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// GetEventCount reports the first logger's count
func (t Tee) GetEventCount() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[0].GetEventCount()
}
