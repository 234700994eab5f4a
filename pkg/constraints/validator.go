package constraints

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

// ErrIntegrity is returned by Guard when a graph has Error-severity violations.
var ErrIntegrity = errors.New("graph violates integrity rules")

// ValidationResult contains the results of validating a graph against constraints
type ValidationResult struct {
	Valid      bool        `json:"valid"` // false if any Error-severity violation was found
	Violations []Violation `json:"violations"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// GetViolationsBySeverity returns violations filtered by severity level
func (vr *ValidationResult) GetViolationsBySeverity(severity Severity) []Violation {
	filtered := make([]Violation, 0)
	for _, v := range vr.Violations {
		if v.Severity == severity {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// GetViolationsByType returns violations filtered by type
func (vr *ValidationResult) GetViolationsByType(violationType ViolationType) []Violation {
	filtered := make([]Violation, 0)
	for _, v := range vr.Violations {
		if v.Type == violationType {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// Validator manages a set of constraints and validates graphs against them
type Validator struct {
	constraints []Constraint
}

// NewValidator creates a validator with the given constraints
func NewValidator(constraints ...Constraint) *Validator {
	return &Validator{constraints: constraints}
}

// Deconfliction returns a validator with the rules the deconfliction graph
// must satisfy. Duplicate names are warnings: lookups assume uniqueness but
// nothing enforces it.
func Deconfliction() *Validator {
	return NewValidator(
		&CardinalityConstraint{NodeLabel: model.LabelProject, EdgeType: model.RelManages, Direction: Incoming, Min: 1, Max: 1},
		ActiveEngagementConstraint{},
		&RequiredPropertyConstraint{NodeLabel: model.LabelProject, PropertyName: model.PropID, Type: storage.TypeString},
		&RequiredPropertyConstraint{NodeLabel: model.LabelProject, PropertyName: model.PropName, Type: storage.TypeString},
		&RequiredPropertyConstraint{NodeLabel: model.LabelUser, PropertyName: model.PropName, Type: storage.TypeString},
		&RequiredPropertyConstraint{NodeLabel: model.LabelVendor, PropertyName: model.PropName, Type: storage.TypeString},
		&UniquePropertyConstraint{NodeLabel: model.LabelProject, PropertyKey: model.PropID, Severity: Error},
		&UniquePropertyConstraint{NodeLabel: model.LabelUser, PropertyKey: model.PropName, Severity: Warning},
		&UniquePropertyConstraint{NodeLabel: model.LabelVendor, PropertyKey: model.PropName, Severity: Warning},
	)
}

// AddConstraint adds a constraint to the validator
func (v *Validator) AddConstraint(constraint Constraint) {
	v.constraints = append(v.constraints, constraint)
}

// Validate runs all constraints against the graph and returns the results
func (v *Validator) Validate(graph GraphReader) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:      true,
		Violations: make([]Violation, 0),
		CheckedAt:  time.Now().UTC(),
	}

	for _, constraint := range v.constraints {
		violations, err := constraint.Validate(graph)
		if err != nil {
			return nil, err
		}
		for _, violation := range violations {
			if violation.Severity == Error {
				result.Valid = false
			}
		}
		result.Violations = append(result.Violations, violations...)
	}

	return result, nil
}

// ValidateStorage runs the constraints against one consistent view of gs.
func (v *Validator) ValidateStorage(gs *storage.GraphStorage) (*ValidationResult, error) {
	var result *ValidationResult
	err := gs.Read(func(r storage.GraphReader) error {
		var err error
		result, err = v.Validate(r)
		return err
	})
	return result, err
}

// Guard adapts v to a storage guard that rejects graphs with any
// Error-severity violation.
func Guard(v *Validator) storage.Guard {
	return func(r storage.GraphReader) error {
		result, err := v.Validate(r)
		if err != nil {
			return err
		}
		if result.Valid {
			return nil
		}
		errs := result.GetViolationsBySeverity(Error)
		return fmt.Errorf("%w: %d error(s), first: %s", ErrIntegrity, len(errs), errs[0].Message)
	}
}

// GetConstraints returns all constraints in the validator
func (v *Validator) GetConstraints() []Constraint {
	return v.constraints
}
