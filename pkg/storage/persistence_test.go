package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
)

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "graph.snap")

	gs, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	user, _ := gs.CreateNode([]string{"User"}, map[string]Value{"name": StringValue("carol")})
	project, _ := gs.CreateNode([]string{"Project"}, map[string]Value{"id": IntValue(7)})
	if _, err := gs.CreateEdge(user.ID, project.ID, "MANAGES", nil); err != nil {
		t.Fatalf("CreateEdge failed: %v", err)
	}
	if err := gs.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	stats := reopened.GetStatistics()
	if stats.NodeCount != 2 || stats.EdgeCount != 1 {
		t.Fatalf("reopened graph has %d nodes and %d edges", stats.NodeCount, stats.EdgeCount)
	}
	if stats.Commits != 3 {
		t.Errorf("Commits = %d, want 3", stats.Commits)
	}

	in, err := reopened.GetIncomingEdges(project.ID)
	if err != nil || len(in) != 1 {
		t.Fatalf("adjacency not rebuilt: %v, %d", err, len(in))
	}

	next, _ := reopened.CreateNode([]string{"Vendor"}, nil)
	if next.ID != 3 {
		t.Errorf("ID allocation not restored: got %d, want 3", next.ID)
	}
}

func TestWriteThroughWithoutClose(t *testing.T) {
	gs, path := testPersistentStorage(t)
	testNode(t, gs, []string{"Vendor"}, map[string]Value{"name": StringValue("Acme")})

	// A second process reading the same file sees the commit immediately.
	other, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer other.Close()

	nodes, _ := other.FindNodesByProperty("Vendor", "name", StringValue("Acme"))
	if len(nodes) != 1 {
		t.Fatalf("expected committed vendor on disk, got %d", len(nodes))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary snapshot file left behind")
	}
}

func TestOpenCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.snap")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestEncodeRestoreRoundTrip(t *testing.T) {
	src := testGraphStorage(t)
	a := testNode(t, src, []string{"Project"}, nil)
	b := testNode(t, src, []string{"Vendor"}, nil)
	testEdge(t, src, a.ID, b.ID, "USES_VENDOR", map[string]Value{"type": StringValue("prime")})

	data, err := src.EncodeSnapshot()
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	dst := testGraphStorage(t)
	if err := dst.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	edges, _ := dst.FindEdgesByType("USES_VENDOR")
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge after restore, got %d", len(edges))
	}
	val, _ := edges[0].GetProperty("type")
	if s, _ := val.AsString(); s != "prime" {
		t.Errorf("type = %q, want prime", s)
	}
}

func encodeTestSnapshot(t *testing.T, snap snapshotFile) []byte {
	t.Helper()

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return snappy.Encode(nil, raw)
}

func TestRestoreDanglingEdgeKeepsGraph(t *testing.T) {
	gs, path := testPersistentStorage(t)
	for _, name := range []string{"Acme", "Globex", "Initech"} {
		testNode(t, gs, []string{"Vendor"}, map[string]Value{"name": StringValue(name)})
	}

	data := encodeTestSnapshot(t, snapshotFile{
		Version:    snapshotVersion,
		Nodes:      []*Node{{ID: 1, Labels: []string{"Project"}}},
		Edges:      []*Edge{{ID: 1, FromNodeID: 1, ToNodeID: 99, Type: "USES_VENDOR"}},
		NextNodeID: 2,
		NextEdgeID: 2,
	})
	if err := gs.Restore(data); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}

	if n := gs.GetStatistics().NodeCount; n != 3 {
		t.Fatalf("failed restore changed the graph: %d nodes, want 3", n)
	}
	vendors, _ := gs.FindNodesByLabel("Vendor")
	if len(vendors) != 3 {
		t.Errorf("label index changed: %d vendors, want 3", len(vendors))
	}
	if projects, _ := gs.FindNodesByLabel("Project"); len(projects) != 0 {
		t.Errorf("partially restored nodes are visible: %d", len(projects))
	}

	if err := gs.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if n := reopened.GetStatistics().NodeCount; n != 3 {
		t.Errorf("persisted graph has %d nodes, want 3", n)
	}
}

func TestRestoreCheckedGuardRejects(t *testing.T) {
	src := testGraphStorage(t)
	testNode(t, src, []string{"Project"}, nil)
	testNode(t, src, []string{"Project"}, nil)
	data, err := src.EncodeSnapshot()
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	dst := testGraphStorage(t)
	testNode(t, dst, []string{"Vendor"}, nil)

	errTooMany := errors.New("too many projects")
	seen := -1
	err = dst.RestoreChecked(data, func(r GraphReader) error {
		projects, _ := r.FindNodesByLabel("Project")
		seen = len(projects)
		if len(projects) > 1 {
			return errTooMany
		}
		return nil
	})
	if !errors.Is(err, errTooMany) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if seen != 2 {
		t.Errorf("guard saw %d projects, want the incoming 2", seen)
	}
	if vendors, _ := dst.FindNodesByLabel("Vendor"); len(vendors) != 1 {
		t.Errorf("rejected restore replaced the graph")
	}

	if err := dst.RestoreChecked(data, func(GraphReader) error { return nil }); err != nil {
		t.Fatalf("RestoreChecked failed: %v", err)
	}
	if projects, _ := dst.FindNodesByLabel("Project"); len(projects) != 2 {
		t.Errorf("accepted restore has %d projects, want 2", len(projects))
	}
}

func TestDiscardSkipsSnapshot(t *testing.T) {
	gs, path := testPersistentStorage(t)
	testNode(t, gs, []string{"Vendor"}, nil)

	if err := gs.Restore(encodeTestSnapshot(t, snapshotFile{Version: snapshotVersion})); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	gs.Discard()
	if _, err := gs.CreateNode([]string{"Vendor"}, nil); !IsClosed(err) {
		t.Errorf("expected closed storage, got %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if n := reopened.GetStatistics().NodeCount; n != 1 {
		t.Errorf("discarded restore reached disk: %d nodes, want 1", n)
	}
}
