package constraints

import (
	"fmt"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

// ActiveEngagementConstraint checks that no vendor has more than one
// USES_VENDOR relation without an end date.
type ActiveEngagementConstraint struct{}

func (ActiveEngagementConstraint) Name() string {
	return "ActiveEngagement(Vendor,USES_VENDOR,max 1)"
}

func (c ActiveEngagementConstraint) Validate(graph GraphReader) ([]Violation, error) {
	vendors, err := graph.FindNodesByLabel(model.LabelVendor)
	if err != nil {
		return nil, fmt.Errorf("failed to find vendors: %w", err)
	}

	var violations []Violation
	for _, vendor := range vendors {
		incoming, err := graph.GetIncomingEdges(vendor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read engagements of vendor %d: %w", vendor.ID, err)
		}

		var active []uint64
		for _, edge := range incoming {
			if edge.Type != model.RelUsesVendor {
				continue
			}
			if _, closed := edge.GetProperty(model.PropEnd); !closed {
				active = append(active, edge.ID)
			}
		}
		if len(active) <= 1 {
			continue
		}

		violations = append(violations, Violation{
			Type:       ActiveEngagementViolation,
			Severity:   Error,
			NodeID:     nodeRef(vendor.ID),
			EdgeIDs:    active,
			Constraint: c.Name(),
			Message: fmt.Sprintf("vendor %q has %d active engagements",
				vendor.StringProperty(model.PropName), len(active)),
			Details: map[string]any{"active": len(active)},
		})
	}
	return violations, nil
}
