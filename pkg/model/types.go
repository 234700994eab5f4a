// Package model defines the entities stored in the deconfliction graph and the
// outcomes reported by the vendor request workflow.
package model

import (
	"fmt"
	"time"
)

// Node labels
const (
	LabelUser    = "User"
	LabelProject = "Project"
	LabelVendor  = "Vendor"
)

// Relation types
const (
	RelManages    = "MANAGES"
	RelUsesVendor = "USES_VENDOR"
)

// Property keys shared by both store backends
const (
	PropName  = "name"
	PropID    = "id"
	PropType  = "type"
	PropStart = "start"
	PropEnd   = "end"
)

// EngagementTypePrime is the only engagement type the workflow creates.
const EngagementTypePrime = "prime"

// DateLayout is the wire format of engagement dates.
const DateLayout = "2006-01-02"

// User is identified by name. Uniqueness is assumed, not enforced.
type User struct {
	Name string `json:"name" yaml:"name"`
}

// Project is created together with its MANAGES edge and never modified.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Vendor is identified by name and is never created by the workflow.
type Vendor struct {
	Name string `json:"name" yaml:"name"`
}

// Engagement is a USES_VENDOR relation from a project to a vendor.
// A nil End means the engagement is active.
type Engagement struct {
	Project string     `json:"project"`
	Vendor  string     `json:"vendor"`
	Type    string     `json:"type"`
	Start   time.Time  `json:"start"`
	End     *time.Time `json:"end,omitempty"`
}

// Active reports whether the engagement has not been closed.
func (e *Engagement) Active() bool {
	return e != nil && e.End == nil
}

// Date truncates t to a calendar day in UTC, matching the store's date() values.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ConflictReport is what gets delivered to the operator channel when a vendor
// request collides with an active engagement.
type ConflictReport struct {
	Project      string    `json:"project"`
	ManagingUser string    `json:"managing_user"`
	Vendor       string    `json:"vendor"`
	Type         string    `json:"type,omitempty"`
	ReportedAt   time.Time `json:"reported_at"`
}

func (r ConflictReport) String() string {
	return fmt.Sprintf("project %s (managed by %s) holds an active engagement with vendor %s",
		r.Project, r.ManagingUser, r.Vendor)
}

// Outcome is the non-error result of a vendor request.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	Assigned
	ConflictNotified
	Unauthorized
	InputInvalid
)

func (o Outcome) String() string {
	switch o {
	case Assigned:
		return "assigned"
	case ConflictNotified:
		return "conflict_notified"
	case Unauthorized:
		return "unauthorized"
	case InputInvalid:
		return "input_invalid"
	default:
		return "unknown"
	}
}

// ParseOutcome converts the textual form back into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "assigned":
		return Assigned, nil
	case "conflict_notified":
		return ConflictNotified, nil
	case "unauthorized":
		return Unauthorized, nil
	case "input_invalid":
		return InputInvalid, nil
	default:
		return OutcomeUnknown, fmt.Errorf("unknown outcome %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so outcomes render as strings in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
