package storage

import (
	"path/filepath"
	"testing"
)

// testGraphStorage creates an in-memory graph closed at test cleanup
func testGraphStorage(t *testing.T) *GraphStorage {
	t.Helper()

	gs := NewGraphStorage()
	t.Cleanup(func() {
		if err := gs.Close(); err != nil && !IsClosed(err) {
			t.Logf("Warning: Close() failed during cleanup: %v", err)
		}
	})
	return gs
}

// testPersistentStorage opens a snapshot-backed graph in a temp dir
func testPersistentStorage(t *testing.T) (*GraphStorage, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "graph.snap")
	gs, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		if err := gs.Close(); err != nil && !IsClosed(err) {
			t.Logf("Warning: Close() failed during cleanup: %v", err)
		}
	})
	return gs, path
}

func testNode(t *testing.T, gs *GraphStorage, labels []string, properties map[string]Value) *Node {
	t.Helper()

	node, err := gs.CreateNode(labels, properties)
	if err != nil {
		t.Fatalf("Failed to create test node: %v", err)
	}
	return node
}

func testEdge(t *testing.T, gs *GraphStorage, fromID, toID uint64, edgeType string, properties map[string]Value) *Edge {
	t.Helper()

	edge, err := gs.CreateEdge(fromID, toID, edgeType, properties)
	if err != nil {
		t.Fatalf("Failed to create test edge: %v", err)
	}
	return edge
}
