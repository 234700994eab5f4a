package constraints

import (
	"fmt"
	"sort"
)

// UniquePropertyConstraint reports property values shared by more than one
// node with the label. Severity lets callers flag assumed-unique names as
// warnings while ids stay errors.
type UniquePropertyConstraint struct {
	NodeLabel   string
	PropertyKey string
	Severity    Severity
}

func (c *UniquePropertyConstraint) Name() string {
	return fmt.Sprintf("Unique(%s.%s)", c.NodeLabel, c.PropertyKey)
}

func (c *UniquePropertyConstraint) Validate(graph GraphReader) ([]Violation, error) {
	nodes, err := graph.FindNodesByLabel(c.NodeLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes with label %s: %w", c.NodeLabel, err)
	}

	seen := make(map[string][]uint64)
	for _, node := range nodes {
		prop, ok := node.GetProperty(c.PropertyKey)
		if !ok {
			continue
		}
		key := prop.String()
		seen[key] = append(seen[key], node.ID)
	}

	values := make([]string, 0, len(seen))
	for value, ids := range seen {
		if len(ids) > 1 {
			values = append(values, value)
		}
	}
	sort.Strings(values)

	violations := make([]Violation, 0, len(values))
	for _, value := range values {
		ids := seen[value]
		violations = append(violations, Violation{
			Type:       UniquenessViolation,
			Severity:   c.Severity,
			NodeID:     nodeRef(ids[0]),
			Constraint: c.Name(),
			Message:    fmt.Sprintf("%d %s nodes share %s %q", len(ids), c.NodeLabel, c.PropertyKey, value),
			Details:    map[string]any{"node_ids": ids, "value": value},
		})
	}
	return violations, nil
}
