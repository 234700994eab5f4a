package storage

import (
	"errors"
	"sync"
)

// Guard is evaluated against the committed graph while the commit holds the
// write lock. A non-nil error aborts the commit and is returned unchanged.
type Guard func(r GraphReader) error

// Transaction buffers writes until Commit. Nothing is visible outside the
// transaction before a successful commit, and Rollback only discards buffers.
type Transaction struct {
	gs         *GraphStorage
	id         uint64
	active     bool
	committed  bool
	rolledBack bool
	mu         sync.Mutex

	createdNodes []*Node
	createdEdges []*Edge
	guards       []Guard
}

// BeginTransaction starts a new transaction
func (gs *GraphStorage) BeginTransaction() (*Transaction, error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.closed {
		return nil, ErrStorageClosed
	}

	gs.txIDCounter++
	return &Transaction{
		gs:     gs,
		id:     gs.txIDCounter,
		active: true,
	}, nil
}

// ID returns the transaction sequence number
func (tx *Transaction) ID() uint64 {
	return tx.id
}

// CreateNode buffers a node creation
func (tx *Transaction) CreateNode(labels []string, properties map[string]Value) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if !tx.active {
		return nil, ErrTransactionNotActive
	}

	node := &Node{
		ID:         tx.gs.allocateNodeID(),
		Labels:     append([]string(nil), labels...),
		Properties: make(map[string]Value, len(properties)),
	}
	for k, v := range properties {
		node.Properties[k] = v
	}

	tx.createdNodes = append(tx.createdNodes, node)
	return node, nil
}

// CreateEdge buffers an edge creation. Both endpoints must exist either in the
// committed graph or among the nodes created by this transaction.
func (tx *Transaction) CreateEdge(fromID, toID uint64, edgeType string, properties map[string]Value) (*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if !tx.active {
		return nil, ErrTransactionNotActive
	}
	if !tx.nodeVisible(fromID) {
		return nil, NodeNotFoundError("CreateEdge", fromID)
	}
	if !tx.nodeVisible(toID) {
		return nil, NodeNotFoundError("CreateEdge", toID)
	}

	edge := &Edge{
		ID:         tx.gs.allocateEdgeID(),
		FromNodeID: fromID,
		ToNodeID:   toID,
		Type:       edgeType,
		Properties: make(map[string]Value, len(properties)),
	}
	for k, v := range properties {
		edge.Properties[k] = v
	}

	tx.createdEdges = append(tx.createdEdges, edge)
	return edge, nil
}

// Guard registers a check that must hold at commit time
func (tx *Transaction) Guard(g Guard) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if !tx.active {
		return ErrTransactionNotActive
	}
	tx.guards = append(tx.guards, g)
	return nil
}

// Pending reports the number of buffered nodes and edges
func (tx *Transaction) Pending() (nodes, edges int) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.createdNodes), len(tx.createdEdges)
}

func (tx *Transaction) nodeVisible(id uint64) bool {
	for _, n := range tx.createdNodes {
		if n.ID == id {
			return true
		}
	}
	tx.gs.mu.RLock()
	defer tx.gs.mu.RUnlock()
	_, ok := tx.gs.nodes[id]
	return ok
}

// Commit evaluates guards and applies buffered changes atomically. When the
// graph is persisted, the snapshot write is part of the commit: if it fails,
// the in-memory changes are reverted.
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return ErrTransactionAlreadyEnded
	}
	if !tx.active {
		return ErrTransactionNotActive
	}

	gs := tx.gs
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.closed {
		tx.discard()
		return ErrStorageClosed
	}

	for _, guard := range tx.guards {
		if err := guard(gs.view()); err != nil {
			tx.discard()
			gs.stats.Rollbacks++
			return err
		}
	}

	for _, node := range tx.createdNodes {
		gs.applyNode(node.Clone())
	}
	for _, edge := range tx.createdEdges {
		gs.applyEdge(edge.Clone())
	}

	if gs.snapshotPath != "" {
		if err := gs.saveLocked(); err != nil {
			gs.revert(tx.createdNodes, tx.createdEdges)
			tx.discard()
			gs.stats.Rollbacks++
			return err
		}
	}

	gs.stats.Commits++
	tx.committed = true
	tx.active = false
	return nil
}

// Rollback discards buffered changes. It is idempotent.
func (tx *Transaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return errors.New("cannot rollback a committed transaction")
	}
	if !tx.active {
		return nil
	}

	tx.discard()
	tx.gs.mu.Lock()
	tx.gs.stats.Rollbacks++
	tx.gs.mu.Unlock()
	return nil
}

func (tx *Transaction) discard() {
	tx.rolledBack = true
	tx.active = false
	tx.createdNodes = nil
	tx.createdEdges = nil
	tx.guards = nil
}

// revert undoes applyNode/applyEdge for a failed commit. Callers hold gs.mu.
func (gs *GraphStorage) revert(nodes []*Node, edges []*Edge) {
	for _, edge := range edges {
		delete(gs.edges, edge.ID)
		gs.edgesByType[edge.Type] = removeID(gs.edgesByType[edge.Type], edge.ID)
		gs.outgoingEdges[edge.FromNodeID] = removeID(gs.outgoingEdges[edge.FromNodeID], edge.ID)
		gs.incomingEdges[edge.ToNodeID] = removeID(gs.incomingEdges[edge.ToNodeID], edge.ID)
	}
	for _, node := range nodes {
		delete(gs.nodes, node.ID)
		for _, label := range node.Labels {
			gs.nodesByLabel[label] = removeID(gs.nodesByLabel[label], node.ID)
		}
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
