// Package embedded implements store.Client over the in-process property graph
// in pkg/storage. A weighted semaphore stands in for a connection pool.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// DefaultPoolSize matches the Neo4j backend's default connection pool.
const DefaultPoolSize = 10

// StageProjectNodeCreated fires after the project node is buffered and before
// its MANAGES relation is created.
const StageProjectNodeCreated = "project.node_created"

// FaultInjector is called at named points inside write operations. A non-nil
// error aborts the operation at that point.
type FaultInjector func(stage string) error

// Option configures a Client
type Option func(*Client)

// WithPoolSize bounds the number of concurrent sessions
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.poolSize = int64(n)
		}
	}
}

// WithFaultInjector installs a hook used by tests to fail writes midway
func WithFaultInjector(f FaultInjector) Option {
	return func(c *Client) { c.faults = f }
}

// WithMetrics reports pool usage and graph size to reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) { c.metrics = reg }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is a store.Client backed by a *storage.GraphStorage.
type Client struct {
	graph    *storage.GraphStorage
	pool     *semaphore.Weighted
	poolSize int64
	faults   FaultInjector
	metrics  *metrics.Registry
	logger   logging.Logger
	inUse    atomic.Int64
	closed   atomic.Bool
}

var (
	_ store.Client      = (*Client)(nil)
	_ store.Seeder      = (*Client)(nil)
	_ store.Engagements = (*Client)(nil)
)

// New wraps an open graph.
func New(graph *storage.GraphStorage, opts ...Option) *Client {
	c := &Client{
		graph:    graph,
		poolSize: DefaultPoolSize,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = semaphore.NewWeighted(c.poolSize)
	c.logger = c.logger.With(logging.Component("embedded-store"))
	return c
}

// Open loads (or creates) the snapshot at path. An empty path keeps the graph in memory.
func Open(path string, opts ...Option) (*Client, error) {
	graph, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open embedded graph: %w", err)
	}
	c := New(graph, opts...)
	c.logger.Info("embedded graph opened", logging.Path(path),
		logging.Uint64("nodes", graph.GetStatistics().NodeCount))
	return c, nil
}

// Graph exposes the underlying storage for integrity checks and backups.
func (c *Client) Graph() *storage.GraphStorage {
	return c.graph
}

// acquire takes a pool slot. The returned release must be called exactly once.
func (c *Client) acquire(ctx context.Context, op string) (func(), error) {
	if c.closed.Load() {
		return nil, store.Unavailable(op, storage.ErrStorageClosed)
	}
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return nil, store.Unavailable(op, err)
	}
	c.trackPool(1)

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			c.trackPool(-1)
			c.pool.Release(1)
		}
	}, nil
}

func (c *Client) trackPool(delta int64) {
	n := c.inUse.Add(delta)
	if c.metrics != nil {
		c.metrics.StorePoolInUse.Set(float64(n))
	}
}

func (c *Client) fault(stage string) error {
	if c.faults == nil {
		return nil
	}
	return c.faults(stage)
}

func (c *Client) afterCommit() {
	if c.metrics == nil {
		return
	}
	stats := c.graph.GetStatistics()
	c.metrics.UpdateGraphSize(stats.NodeCount, stats.EdgeCount)
}

// mapErr translates storage failures into store sentinels.
func mapErr(op string, err error) error {
	var se *storage.StorageError
	switch {
	case err == nil:
		return nil
	case storage.IsClosed(err):
		return store.Unavailable(op, err)
	case errors.As(err, &se) && se.Entity == "snapshot":
		return store.Unavailable(op, err)
	case storage.IsNotFound(err):
		return fmt.Errorf("%s: %w: %w", op, store.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return store.Unavailable(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// read runs fn on a consistent view while holding a pool slot.
func (c *Client) read(ctx context.Context, op string, fn func(r storage.GraphReader) error) error {
	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return store.Unavailable(op, err)
	}
	return mapErr(op, c.graph.Read(fn))
}

func (c *Client) ActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error) {
	var found *model.Engagement
	err := c.read(ctx, "active_engagement", func(r storage.GraphReader) error {
		v := findNamed(r, model.LabelVendor, vendor)
		if v == nil {
			return nil
		}
		edges, err := activeEngagements(r, v.ID)
		if err != nil || len(edges) == 0 {
			return err
		}
		found, err = toEngagement(r, edges[0])
		return err
	})
	return found, err
}

func (c *Client) ManagingUser(ctx context.Context, project string) (*model.User, error) {
	var user *model.User
	err := c.read(ctx, "managing_user", func(r storage.GraphReader) error {
		p := findNamed(r, model.LabelProject, project)
		if p == nil {
			return nil
		}
		u, err := managerOf(r, p.ID)
		if err != nil || u == nil {
			return err
		}
		user = &model.User{Name: u.StringProperty(model.PropName)}
		return nil
	})
	return user, err
}

func (c *Client) ConflictOwner(ctx context.Context, vendor string) (*model.ConflictReport, error) {
	var report *model.ConflictReport
	err := c.read(ctx, "conflict_owner", func(r storage.GraphReader) error {
		v := findNamed(r, model.LabelVendor, vendor)
		if v == nil {
			return nil
		}
		edges, err := activeEngagements(r, v.ID)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			p, err := r.GetNode(edge.FromNodeID)
			if err != nil {
				return err
			}
			u, err := managerOf(r, p.ID)
			if err != nil {
				return err
			}
			if u == nil {
				continue
			}
			report = &model.ConflictReport{
				Project:      p.StringProperty(model.PropName),
				ManagingUser: u.StringProperty(model.PropName),
				Vendor:       v.StringProperty(model.PropName),
				Type:         edgeString(edge, model.PropType),
			}
			return nil
		}
		return nil
	})
	return report, err
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := c.read(ctx, "list_projects", func(r storage.GraphReader) error {
		nodes, err := r.FindNodesByLabel(model.LabelProject)
		if err != nil {
			return err
		}
		projects = make([]model.Project, 0, len(nodes))
		for _, n := range nodes {
			projects = append(projects, model.Project{
				ID:   n.StringProperty(model.PropID),
				Name: n.StringProperty(model.PropName),
			})
		}
		return nil
	})
	return projects, err
}

// Engagements lists every USES_VENDOR relation into the vendor, closed ones included.
func (c *Client) Engagements(ctx context.Context, vendor string) ([]model.Engagement, error) {
	var out []model.Engagement
	err := c.read(ctx, "engagements", func(r storage.GraphReader) error {
		v := findNamed(r, model.LabelVendor, vendor)
		if v == nil {
			return nil
		}
		edges, err := engagementsOf(r, v.ID)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			e, err := toEngagement(r, edge)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return nil
	})
	return out, err
}

func (c *Client) Ping(ctx context.Context) error {
	release, err := c.acquire(ctx, "ping")
	if err != nil {
		return err
	}
	defer release()
	return mapErr("ping", c.graph.Read(func(storage.GraphReader) error { return nil }))
}

// Close flushes the snapshot. Closing twice is a no-op.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.graph.Close(); err != nil && !storage.IsClosed(err) {
		return mapErr("close", err)
	}
	return nil
}
