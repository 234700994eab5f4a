package constraints

import (
	"fmt"

	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

// RequiredPropertyConstraint checks that every node with the label carries a
// non-empty property of the given type.
type RequiredPropertyConstraint struct {
	NodeLabel    string
	PropertyName string
	Type         storage.ValueType
}

func (pc *RequiredPropertyConstraint) Name() string {
	return fmt.Sprintf("Required(%s.%s)", pc.NodeLabel, pc.PropertyName)
}

func (pc *RequiredPropertyConstraint) Validate(graph GraphReader) ([]Violation, error) {
	nodes, err := graph.FindNodesByLabel(pc.NodeLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes with label %s: %w", pc.NodeLabel, err)
	}

	var violations []Violation
	for _, node := range nodes {
		value, ok := node.GetProperty(pc.PropertyName)
		switch {
		case !ok || len(value.Data) == 0:
			violations = append(violations, Violation{
				Type:       MissingProperty,
				Severity:   Error,
				NodeID:     nodeRef(node.ID),
				Constraint: pc.Name(),
				Message:    fmt.Sprintf("%s node %d has no %s", pc.NodeLabel, node.ID, pc.PropertyName),
			})
		case value.Type != pc.Type:
			violations = append(violations, Violation{
				Type:       InvalidType,
				Severity:   Error,
				NodeID:     nodeRef(node.ID),
				Constraint: pc.Name(),
				Message:    fmt.Sprintf("%s node %d property %s has the wrong type", pc.NodeLabel, node.ID, pc.PropertyName),
				Details:    map[string]any{"actual_type": value.Type, "expected_type": pc.Type},
			})
		}
	}
	return violations, nil
}
