package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
)

// snapshotFile is the on-disk form of the graph. Indexes are rebuilt on load.
type snapshotFile struct {
	Version    int
	Nodes      []*Node
	Edges      []*Edge
	NextNodeID uint64
	NextEdgeID uint64
	Commits    uint64
	Rollbacks  uint64
	TakenAt    time.Time
}

const snapshotVersion = 1

// SnapshotPath returns the file the graph is persisted to, or "" for in-memory graphs.
func (gs *GraphStorage) SnapshotPath() string {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.snapshotPath
}

// EncodeSnapshot returns the snappy-compressed snapshot of the committed graph.
func (gs *GraphStorage) EncodeSnapshot() ([]byte, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if gs.closed {
		return nil, ErrStorageClosed
	}
	return gs.encodeLocked()
}

func (gs *GraphStorage) encodeLocked() ([]byte, error) {
	snap := snapshotFile{
		Version:    snapshotVersion,
		Nodes:      gs.view().GetAllNodes(),
		NextNodeID: gs.nextNodeID,
		NextEdgeID: gs.nextEdgeID,
		Commits:    gs.stats.Commits,
		Rollbacks:  gs.stats.Rollbacks,
		TakenAt:    time.Now().UTC(),
	}

	edgeIDs := make([]uint64, 0, len(gs.edges))
	for id := range gs.edges {
		edgeIDs = append(edgeIDs, id)
	}
	sortIDs(edgeIDs)
	snap.Edges = make([]*Edge, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		snap.Edges = append(snap.Edges, gs.edges[id])
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// saveLocked writes the snapshot to a temporary file and renames it into
// place. Callers hold gs.mu for writing.
func (gs *GraphStorage) saveLocked() error {
	data, err := gs.encodeLocked()
	if err != nil {
		return SnapshotError("save", gs.snapshotPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(gs.snapshotPath), dirPermissions); err != nil {
		return SnapshotError("save", gs.snapshotPath, err)
	}

	tmpPath := gs.snapshotPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, filePermissions); err != nil {
		return SnapshotError("save", gs.snapshotPath, err)
	}
	if err := os.Rename(tmpPath, gs.snapshotPath); err != nil {
		os.Remove(tmpPath)
		return SnapshotError("save", gs.snapshotPath, err)
	}

	gs.stats.LastSnapshot = time.Now()
	return nil
}

// loadFromDisk replaces the graph with the snapshot at gs.snapshotPath.
// A missing file is reported as os.ErrNotExist.
func (gs *GraphStorage) loadFromDisk() error {
	data, err := os.ReadFile(gs.snapshotPath)
	if err != nil {
		return err
	}
	return gs.restore(data)
}

// Restore replaces the in-memory graph with an encoded snapshot.
func (gs *GraphStorage) Restore(data []byte) error {
	return gs.RestoreChecked(data)
}

// RestoreChecked decodes data into a separate graph, runs guards against it
// and only then replaces the current graph. On any error the current graph
// is left untouched.
func (gs *GraphStorage) RestoreChecked(data []byte, guards ...Guard) error {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.closed {
		return ErrStorageClosed
	}
	return gs.restore(data, guards...)
}

func (gs *GraphStorage) restore(data []byte, guards ...Guard) error {
	staged, err := gs.decodeSnapshot(data)
	if err != nil {
		return err
	}
	for _, guard := range guards {
		if err := guard(staged.view()); err != nil {
			return err
		}
	}

	gs.nodes = staged.nodes
	gs.edges = staged.edges
	gs.nodesByLabel = staged.nodesByLabel
	gs.edgesByType = staged.edgesByType
	gs.outgoingEdges = staged.outgoingEdges
	gs.incomingEdges = staged.incomingEdges
	gs.nextNodeID = staged.nextNodeID
	gs.nextEdgeID = staged.nextEdgeID
	gs.stats.Commits = staged.stats.Commits
	gs.stats.Rollbacks = staged.stats.Rollbacks
	gs.stats.LastSnapshot = staged.stats.LastSnapshot
	return nil
}

// decodeSnapshot builds a standalone graph from data. Errors are reported
// against gs.snapshotPath.
func (gs *GraphStorage) decodeSnapshot(data []byte) (*GraphStorage, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, SnapshotError("load", gs.snapshotPath, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err))
	}

	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, SnapshotError("load", gs.snapshotPath, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err))
	}
	if snap.Version != snapshotVersion {
		return nil, SnapshotError("load", gs.snapshotPath, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, snap.Version))
	}

	staged := NewGraphStorage()
	for _, node := range snap.Nodes {
		if node.Properties == nil {
			node.Properties = make(map[string]Value)
		}
		staged.applyNode(node)
	}
	for _, edge := range snap.Edges {
		if _, ok := staged.nodes[edge.FromNodeID]; !ok {
			return nil, SnapshotError("load", gs.snapshotPath, fmt.Errorf("%w: edge %d has dangling source", ErrSnapshotCorrupt, edge.ID))
		}
		if _, ok := staged.nodes[edge.ToNodeID]; !ok {
			return nil, SnapshotError("load", gs.snapshotPath, fmt.Errorf("%w: edge %d has dangling target", ErrSnapshotCorrupt, edge.ID))
		}
		if edge.Properties == nil {
			edge.Properties = make(map[string]Value)
		}
		staged.applyEdge(edge)
	}

	staged.nextNodeID = max(snap.NextNodeID, 1)
	staged.nextEdgeID = max(snap.NextEdgeID, 1)
	staged.stats.Commits = snap.Commits
	staged.stats.Rollbacks = snap.Rollbacks
	staged.stats.LastSnapshot = snap.TakenAt
	return staged, nil
}
