// Package constraints audits the integrity rules of the deconfliction graph:
// project ownership, the one-active-engagement-per-vendor rule and the
// identifying properties every node must carry.
package constraints

import (
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

// GraphReader is the read-only view constraints validate against.
type GraphReader = storage.GraphReader

// Severity indicates the importance of a violation
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// ViolationType categorizes the type of constraint violation
type ViolationType int

const (
	MissingProperty ViolationType = iota
	InvalidType
	CardinalityViolation
	UniquenessViolation
	ActiveEngagementViolation
)

func (vt ViolationType) String() string {
	switch vt {
	case MissingProperty:
		return "MissingProperty"
	case InvalidType:
		return "InvalidType"
	case CardinalityViolation:
		return "CardinalityViolation"
	case UniquenessViolation:
		return "UniquenessViolation"
	case ActiveEngagementViolation:
		return "ActiveEngagementViolation"
	default:
		return "Unknown"
	}
}

// MarshalText renders the type by name in JSON reports.
func (vt ViolationType) MarshalText() ([]byte, error) {
	return []byte(vt.String()), nil
}

// MarshalText renders the severity by name in JSON reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Violation represents a constraint violation
type Violation struct {
	Type       ViolationType  `json:"type"`
	Severity   Severity       `json:"severity"`
	NodeID     *uint64        `json:"node_id,omitempty"`
	EdgeIDs    []uint64       `json:"edge_ids,omitempty"`
	Constraint string         `json:"constraint"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Constraint is implemented by every integrity rule.
type Constraint interface {
	// Validate returns the violations found; an error means the graph could
	// not be read.
	Validate(graph GraphReader) ([]Violation, error)
	Name() string
}

func nodeRef(id uint64) *uint64 {
	return &id
}
