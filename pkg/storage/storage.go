package storage

import (
	"os"
	"sort"
	"sync"
	"time"
)

const (
	dirPermissions  = 0755
	filePermissions = 0644
)

// GraphReader defines the read-only operations shared by the storage engine,
// its transactions and commit guards.
type GraphReader interface {
	GetNode(nodeID uint64) (*Node, error)
	GetEdge(edgeID uint64) (*Edge, error)
	GetAllNodes() []*Node
	GetAllLabels() []string
	FindNodesByLabel(label string) ([]*Node, error)
	FindNodesByProperty(label, key string, value Value) ([]*Node, error)
	FindEdgesByType(edgeType string) ([]*Edge, error)
	GetOutgoingEdges(nodeID uint64) ([]*Edge, error)
	GetIncomingEdges(nodeID uint64) ([]*Edge, error)
}

// GraphStorage is an in-memory property graph with optional snapshot persistence.
type GraphStorage struct {
	nodes map[uint64]*Node
	edges map[uint64]*Edge

	nodesByLabel  map[string][]uint64
	edgesByType   map[string][]uint64
	outgoingEdges map[uint64][]uint64
	incomingEdges map[uint64][]uint64

	nextNodeID uint64
	nextEdgeID uint64

	mu     sync.RWMutex
	closed bool

	// snapshotPath is empty for a purely in-memory graph.
	snapshotPath string
	stats        Statistics
	txIDCounter  uint64
}

// NewGraphStorage creates an in-memory graph that is never persisted.
func NewGraphStorage() *GraphStorage {
	return &GraphStorage{
		nodes:         make(map[uint64]*Node),
		edges:         make(map[uint64]*Edge),
		nodesByLabel:  make(map[string][]uint64),
		edgesByType:   make(map[string][]uint64),
		outgoingEdges: make(map[uint64][]uint64),
		incomingEdges: make(map[uint64][]uint64),
		nextNodeID:    1,
		nextEdgeID:    1,
	}
}

// Open loads the graph from snapshotPath, creating an empty graph when the file
// does not exist yet. Every committed change is written back to the same path.
func Open(snapshotPath string) (*GraphStorage, error) {
	gs := NewGraphStorage()
	gs.snapshotPath = snapshotPath
	if snapshotPath == "" {
		return gs, nil
	}
	if err := gs.loadFromDisk(); err != nil {
		if os.IsNotExist(err) {
			return gs, nil
		}
		return nil, err
	}
	return gs, nil
}

// CreateNode creates and persists a single node.
func (gs *GraphStorage) CreateNode(labels []string, properties map[string]Value) (*Node, error) {
	tx, err := gs.BeginTransaction()
	if err != nil {
		return nil, err
	}
	node, err := tx.CreateNode(labels, properties)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return node.Clone(), nil
}

// CreateEdge creates and persists a single edge.
func (gs *GraphStorage) CreateEdge(fromID, toID uint64, edgeType string, properties map[string]Value) (*Edge, error) {
	tx, err := gs.BeginTransaction()
	if err != nil {
		return nil, err
	}
	edge, err := tx.CreateEdge(fromID, toID, edgeType, properties)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return edge.Clone(), nil
}

// GetNode retrieves a node by ID
func (gs *GraphStorage) GetNode(nodeID uint64) (*Node, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().GetNode(nodeID)
}

// GetEdge retrieves an edge by ID
func (gs *GraphStorage) GetEdge(edgeID uint64) (*Edge, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().GetEdge(edgeID)
}

// GetAllNodes returns copies of every node
func (gs *GraphStorage) GetAllNodes() []*Node {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.view().GetAllNodes()
}

// GetAllLabels returns every label in use, sorted
func (gs *GraphStorage) GetAllLabels() []string {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.view().GetAllLabels()
}

// FindNodesByLabel finds all nodes with a specific label
func (gs *GraphStorage) FindNodesByLabel(label string) ([]*Node, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().FindNodesByLabel(label)
}

// FindNodesByProperty finds nodes carrying label whose property key equals value
func (gs *GraphStorage) FindNodesByProperty(label, key string, value Value) ([]*Node, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().FindNodesByProperty(label, key, value)
}

// FindEdgesByType finds all edges of a specific type
func (gs *GraphStorage) FindEdgesByType(edgeType string) ([]*Edge, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().FindEdgesByType(edgeType)
}

// GetOutgoingEdges gets all edges leaving a node
func (gs *GraphStorage) GetOutgoingEdges(nodeID uint64) ([]*Edge, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().GetOutgoingEdges(nodeID)
}

// GetIncomingEdges gets all edges pointing at a node
func (gs *GraphStorage) GetIncomingEdges(nodeID uint64) ([]*Edge, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.view().GetIncomingEdges(nodeID)
}

// Read runs fn against a consistent view of the committed graph.
func (gs *GraphStorage) Read(fn func(r GraphReader) error) error {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return ErrStorageClosed
	}
	return fn(gs.view())
}

// GetStatistics returns a copy of the current statistics
func (gs *GraphStorage) GetStatistics() Statistics {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	stats := gs.stats
	stats.NodeCount = uint64(len(gs.nodes))
	stats.EdgeCount = uint64(len(gs.edges))
	return stats
}

// Close flushes a final snapshot and rejects further operations
func (gs *GraphStorage) Close() error {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.closed {
		return ErrStorageClosed
	}
	gs.closed = true
	if gs.snapshotPath == "" {
		return nil
	}
	return gs.saveLocked()
}

// Discard closes the graph without writing a snapshot, leaving whatever is
// on disk in place.
func (gs *GraphStorage) Discard() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.closed = true
}

func (gs *GraphStorage) view() graphView {
	return graphView{gs: gs}
}

// graphView reads storage maps without locking. Callers hold gs.mu.
type graphView struct {
	gs *GraphStorage
}

func (v graphView) GetNode(nodeID uint64) (*Node, error) {
	node, ok := v.gs.nodes[nodeID]
	if !ok {
		return nil, NodeNotFoundError("get", nodeID)
	}
	return node.Clone(), nil
}

func (v graphView) GetEdge(edgeID uint64) (*Edge, error) {
	edge, ok := v.gs.edges[edgeID]
	if !ok {
		return nil, EdgeNotFoundError("get", edgeID)
	}
	return edge.Clone(), nil
}

func (v graphView) GetAllNodes() []*Node {
	ids := make([]uint64, 0, len(v.gs.nodes))
	for id := range v.gs.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, v.gs.nodes[id].Clone())
	}
	return nodes
}

func (v graphView) GetAllLabels() []string {
	labels := make([]string, 0, len(v.gs.nodesByLabel))
	for label, ids := range v.gs.nodesByLabel {
		if len(ids) > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

func (v graphView) FindNodesByLabel(label string) ([]*Node, error) {
	ids := v.gs.nodesByLabel[label]
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := v.gs.nodes[id]; ok {
			nodes = append(nodes, node.Clone())
		}
	}
	return nodes, nil
}

func (v graphView) FindNodesByProperty(label, key string, value Value) ([]*Node, error) {
	var nodes []*Node
	for _, id := range v.gs.nodesByLabel[label] {
		node, ok := v.gs.nodes[id]
		if !ok {
			continue
		}
		if prop, exists := node.Properties[key]; exists && prop.Equal(value) {
			nodes = append(nodes, node.Clone())
		}
	}
	return nodes, nil
}

func (v graphView) FindEdgesByType(edgeType string) ([]*Edge, error) {
	ids := v.gs.edgesByType[edgeType]
	edges := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		if edge, ok := v.gs.edges[id]; ok {
			edges = append(edges, edge.Clone())
		}
	}
	return edges, nil
}

func (v graphView) GetOutgoingEdges(nodeID uint64) ([]*Edge, error) {
	if _, ok := v.gs.nodes[nodeID]; !ok {
		return nil, NodeNotFoundError("outgoing", nodeID)
	}
	return v.collectEdges(v.gs.outgoingEdges[nodeID]), nil
}

func (v graphView) GetIncomingEdges(nodeID uint64) ([]*Edge, error) {
	if _, ok := v.gs.nodes[nodeID]; !ok {
		return nil, NodeNotFoundError("incoming", nodeID)
	}
	return v.collectEdges(v.gs.incomingEdges[nodeID]), nil
}

func (v graphView) collectEdges(ids []uint64) []*Edge {
	edges := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		if edge, ok := v.gs.edges[id]; ok {
			edges = append(edges, edge.Clone())
		}
	}
	return edges
}

// applyNode and applyEdge mutate the maps and indexes. Callers hold gs.mu.
func (gs *GraphStorage) applyNode(node *Node) {
	if node.CreatedAt == 0 {
		node.CreatedAt = time.Now().Unix()
	}
	gs.nodes[node.ID] = node
	for _, label := range node.Labels {
		gs.nodesByLabel[label] = append(gs.nodesByLabel[label], node.ID)
	}
}

func (gs *GraphStorage) applyEdge(edge *Edge) {
	if edge.CreatedAt == 0 {
		edge.CreatedAt = time.Now().Unix()
	}
	gs.edges[edge.ID] = edge
	gs.edgesByType[edge.Type] = append(gs.edgesByType[edge.Type], edge.ID)
	gs.outgoingEdges[edge.FromNodeID] = append(gs.outgoingEdges[edge.FromNodeID], edge.ID)
	gs.incomingEdges[edge.ToNodeID] = append(gs.incomingEdges[edge.ToNodeID], edge.ID)
}

func (gs *GraphStorage) allocateNodeID() uint64 {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	id := gs.nextNodeID
	gs.nextNodeID++
	return id
}

func (gs *GraphStorage) allocateEdgeID() uint64 {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	id := gs.nextEdgeID
	gs.nextEdgeID++
	return id
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
