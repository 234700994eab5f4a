package embedded

import (
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

// findNamed returns the oldest node with label and name, or nil.
func findNamed(r storage.GraphReader, label, name string) *storage.Node {
	nodes, err := r.FindNodesByProperty(label, model.PropName, storage.StringValue(name))
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// engagementsOf returns every USES_VENDOR relation into vendorID.
func engagementsOf(r storage.GraphReader, vendorID uint64) ([]*storage.Edge, error) {
	in, err := r.GetIncomingEdges(vendorID)
	if err != nil {
		return nil, err
	}
	edges := in[:0]
	for _, e := range in {
		if e.Type == model.RelUsesVendor {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

// activeEngagements returns USES_VENDOR relations into vendorID without an end date.
func activeEngagements(r storage.GraphReader, vendorID uint64) ([]*storage.Edge, error) {
	all, err := engagementsOf(r, vendorID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, e := range all {
		if _, closed := e.GetProperty(model.PropEnd); !closed {
			active = append(active, e)
		}
	}
	return active, nil
}

// managerOf follows the first incoming MANAGES relation of projectID.
func managerOf(r storage.GraphReader, projectID uint64) (*storage.Node, error) {
	in, err := r.GetIncomingEdges(projectID)
	if err != nil {
		return nil, err
	}
	for _, e := range in {
		if e.Type != model.RelManages {
			continue
		}
		return r.GetNode(e.FromNodeID)
	}
	return nil, nil
}

func toEngagement(r storage.GraphReader, edge *storage.Edge) (*model.Engagement, error) {
	project, err := r.GetNode(edge.FromNodeID)
	if err != nil {
		return nil, err
	}
	vendor, err := r.GetNode(edge.ToNodeID)
	if err != nil {
		return nil, err
	}

	e := &model.Engagement{
		Project: project.StringProperty(model.PropName),
		Vendor:  vendor.StringProperty(model.PropName),
		Type:    edgeString(edge, model.PropType),
		Start:   edgeDate(edge, model.PropStart),
	}
	if end, ok := edge.GetProperty(model.PropEnd); ok {
		if t, err := end.AsDate(); err == nil {
			e.End = &t
		}
	}
	return e, nil
}

func edgeString(edge *storage.Edge, key string) string {
	v, ok := edge.GetProperty(key)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

func edgeDate(edge *storage.Edge, key string) time.Time {
	v, ok := edge.GetProperty(key)
	if !ok {
		return time.Time{}
	}
	t, _ := v.AsDate()
	return t
}

func engagementProperties(e model.Engagement) map[string]storage.Value {
	props := map[string]storage.Value{
		model.PropType:  storage.StringValue(e.Type),
		model.PropStart: storage.DateValue(e.Start),
	}
	if e.End != nil {
		props[model.PropEnd] = storage.DateValue(*e.End)
	}
	return props
}
