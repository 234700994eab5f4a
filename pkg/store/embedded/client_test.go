package embedded

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
	"github.com/dd0wney/cluso-deconflict/pkg/store/storetest"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c := New(storage.NewGraphStorage(), opts...)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Client {
		return newTestClient(t)
	})
}

func TestConformancePersistent(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Client {
		c, err := Open(filepath.Join(t.TempDir(), "graph.snap"))
		require.NoError(t, err)
		t.Cleanup(func() { c.Close(context.Background()) })
		return c
	})
}

func TestFaultBetweenNodeAndEdgeLeavesNothing(t *testing.T) {
	ctx := context.Background()
	injected := errors.New("injected")
	c := newTestClient(t, WithFaultInjector(func(stage string) error {
		if stage == StageProjectNodeCreated {
			return injected
		}
		return nil
	}))
	require.NoError(t, c.EnsureUser(ctx, model.User{Name: "alice"}))
	before := c.Graph().GetStatistics()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.CreateProject(ctx, "alice", model.Project{ID: uuid.NewString(), Name: "Apollo"})
	require.ErrorIs(t, err, injected)
	require.NoError(t, tx.Rollback(ctx))

	after := c.Graph().GetStatistics()
	assert.Equal(t, before.NodeCount, after.NodeCount)
	assert.Equal(t, before.EdgeCount, after.EdgeCount)

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestPoolBoundsConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	reg := metrics.NewRegistry()
	c := newTestClient(t, WithPoolSize(2), WithMetrics(reg))

	tx1, err := c.Begin(ctx)
	require.NoError(t, err)
	tx2, err := c.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.inUse.Load())

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.Begin(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	require.NoError(t, tx1.Rollback(ctx))
	require.NoError(t, tx2.Commit(ctx))
	assert.Equal(t, int64(0), c.inUse.Load())

	require.NoError(t, c.Ping(ctx))
}

func TestClosedClientIsUnavailable(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewGraphStorage())
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	assert.ErrorIs(t, c.Ping(ctx), store.ErrUnavailable)
	_, err := c.ActiveEngagement(ctx, "Acme")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestReopenKeepsEngagements(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.snap")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.EnsureUser(ctx, model.User{Name: "alice"}))
	require.NoError(t, c.EnsureVendor(ctx, model.Vendor{Name: "Acme"}))
	storetest.CreateProject(t, c, "alice", "Apollo")
	require.NoError(t, c.CreateEngagement(ctx, model.Engagement{
		Project: "Apollo", Vendor: "Acme", Type: model.EngagementTypePrime, Start: model.Date(time.Now()),
	}))
	require.NoError(t, c.Close(ctx))

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close(ctx)

	e, err := reopened.ActiveEngagement(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Apollo", e.Project)
}

func TestGraphSizeMetrics(t *testing.T) {
	ctx := context.Background()
	reg := metrics.NewRegistry()
	c := newTestClient(t, WithMetrics(reg))

	require.NoError(t, c.EnsureUser(ctx, model.User{Name: "alice"}))
	storetest.CreateProject(t, c, "alice", "Apollo")

	var m dto.Metric
	require.NoError(t, reg.GraphNodesTotal.Write(&m))
	assert.Equal(t, float64(2), m.Gauge.GetValue())
	require.NoError(t, reg.GraphEdgesTotal.Write(&m))
	assert.Equal(t, float64(1), m.Gauge.GetValue())
}
