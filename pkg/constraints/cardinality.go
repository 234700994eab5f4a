package constraints

import (
	"fmt"

	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

// Direction specifies edge direction for cardinality constraints
type Direction int

const (
	Outgoing Direction = iota // Edges from this node
	Incoming                  // Edges to this node
	Any                       // Edges in either direction
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "Outgoing"
	case Incoming:
		return "Incoming"
	case Any:
		return "Any"
	default:
		return "Unknown"
	}
}

// CardinalityConstraint bounds how many edges of a type a labelled node has.
// Max 0 means unbounded.
type CardinalityConstraint struct {
	NodeLabel string
	EdgeType  string // empty matches any type
	Direction Direction
	Min       int
	Max       int
}

func (cc *CardinalityConstraint) Name() string {
	edgeType := cc.EdgeType
	if edgeType == "" {
		edgeType = "*"
	}
	return fmt.Sprintf("Cardinality(%s,%s,%s,[%d,%d])",
		cc.NodeLabel, edgeType, cc.Direction, cc.Min, cc.Max)
}

func (cc *CardinalityConstraint) Validate(graph GraphReader) ([]Violation, error) {
	nodes, err := graph.FindNodesByLabel(cc.NodeLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes with label %s: %w", cc.NodeLabel, err)
	}

	var violations []Violation
	for _, node := range nodes {
		count, err := cc.countEdges(graph, node.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count edges for node %d: %w", node.ID, err)
		}

		var bound string
		switch {
		case cc.Min > 0 && count < cc.Min:
			bound = fmt.Sprintf("minimum is %d", cc.Min)
		case cc.Max > 0 && count > cc.Max:
			bound = fmt.Sprintf("maximum is %d", cc.Max)
		default:
			continue
		}

		violations = append(violations, Violation{
			Type:       CardinalityViolation,
			Severity:   Error,
			NodeID:     nodeRef(node.ID),
			Constraint: cc.Name(),
			Message: fmt.Sprintf("%s %q has %d %s %s edge(s), %s",
				cc.NodeLabel, node.StringProperty("name"), count, cc.Direction, cc.EdgeType, bound),
			Details: map[string]any{
				"label":     cc.NodeLabel,
				"edge_type": cc.EdgeType,
				"direction": cc.Direction.String(),
				"count":     count,
			},
		})
	}
	return violations, nil
}

func (cc *CardinalityConstraint) countEdges(graph GraphReader, nodeID uint64) (int, error) {
	count := 0
	if cc.Direction == Outgoing || cc.Direction == Any {
		outgoing, err := graph.GetOutgoingEdges(nodeID)
		if err != nil {
			return 0, err
		}
		count += cc.matching(outgoing)
	}
	if cc.Direction == Incoming || cc.Direction == Any {
		incoming, err := graph.GetIncomingEdges(nodeID)
		if err != nil {
			return 0, err
		}
		count += cc.matching(incoming)
	}
	return count, nil
}

func (cc *CardinalityConstraint) matching(edges []*storage.Edge) int {
	if cc.EdgeType == "" {
		return len(edges)
	}
	n := 0
	for _, edge := range edges {
		if edge.Type == cc.EdgeType {
			n++
		}
	}
	return n
}
