package deconflict

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
	"github.com/dd0wney/cluso-deconflict/pkg/store/embedded"
)

var testDay = time.Date(2024, 6, 3, 15, 4, 5, 0, time.UTC)

// countingClient counts calls so tests can assert that nothing was written.
type countingClient struct {
	store.Client
	reads  atomic.Int64
	writes atomic.Int64
}

func (c *countingClient) Begin(ctx context.Context) (store.Tx, error) {
	c.writes.Add(1)
	return c.Client.Begin(ctx)
}

func (c *countingClient) CreateEngagement(ctx context.Context, e model.Engagement) error {
	c.writes.Add(1)
	return c.Client.CreateEngagement(ctx, e)
}

func (c *countingClient) ActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error) {
	c.reads.Add(1)
	return c.Client.ActiveEngagement(ctx, vendor)
}

func (c *countingClient) ManagingUser(ctx context.Context, project string) (*model.User, error) {
	c.reads.Add(1)
	return c.Client.ManagingUser(ctx, project)
}

func (c *countingClient) ConflictOwner(ctx context.Context, vendor string) (*model.ConflictReport, error) {
	c.reads.Add(1)
	return c.Client.ConflictOwner(ctx, vendor)
}

func (c *countingClient) calls() int64 {
	return c.reads.Load() + c.writes.Load()
}

// recordingReporter keeps every report it is given
type recordingReporter struct {
	mu      sync.Mutex
	reports []model.ConflictReport
	err     error
}

func (r *recordingReporter) Name() string { return "recording" }

func (r *recordingReporter) Report(_ context.Context, report model.ConflictReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reports = append(r.reports, report)
	return nil
}

func (r *recordingReporter) all() []model.ConflictReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ConflictReport(nil), r.reports...)
}

type fixture struct {
	backend  *embedded.Client
	client   *countingClient
	projects *ProjectService
	workflow *Workflow
	reporter *recordingReporter
	audit    *audit.AuditLogger
	metrics  *metrics.Registry
}

func newFixture(t *testing.T, opts ...embedded.Option) *fixture {
	t.Helper()
	backend := embedded.New(storage.NewGraphStorage(), opts...)
	t.Cleanup(func() { backend.Close(context.Background()) })

	f := &fixture{
		backend:  backend,
		client:   &countingClient{Client: backend},
		reporter: &recordingReporter{},
		audit:    audit.NewAuditLogger(100),
		metrics:  metrics.NewRegistry(),
	}
	svcOpts := []Option{
		WithAudit(f.audit),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return testDay }),
	}
	f.projects = NewProjectService(f.client, svcOpts...)
	f.workflow = NewWorkflow(f.client, f.reporter, svcOpts...)
	return f
}

func (f *fixture) users(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, f.backend.EnsureUser(context.Background(), model.User{Name: name}))
	}
}

func (f *fixture) vendors(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, f.backend.EnsureVendor(context.Background(), model.Vendor{Name: name}))
	}
}

func (f *fixture) project(t *testing.T, user, name string) *model.Project {
	t.Helper()
	p, err := f.projects.CreateProject(context.Background(), user, name)
	require.NoError(t, err)
	return p
}

func (f *fixture) engagements(t *testing.T, vendor string) []model.Engagement {
	t.Helper()
	es, err := f.backend.Engagements(context.Background(), vendor)
	require.NoError(t, err)
	return es
}

func activeCount(es []model.Engagement) int {
	n := 0
	for i := range es {
		if es[i].Active() {
			n++
		}
	}
	return n
}

// fakeTx lets tests control what the create statement and commit return.
type fakeTx struct {
	created     *model.Project
	createErr   error
	commitErr   error
	rollbackErr error
	rolledBack  bool
	committed   bool
}

func (tx *fakeTx) CreateProject(_ context.Context, _ string, p model.Project) (*model.Project, error) {
	if tx.createErr != nil {
		return nil, tx.createErr
	}
	return tx.created, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return tx.commitErr
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return tx.rollbackErr
}

// fakeClient answers every call with the configured values.
type fakeClient struct {
	store.Client
	tx        *fakeTx
	beginErr  error
	active    *model.Engagement
	manager   *model.User
	owner     *model.ConflictReport
	readErr   error
	createErr error
	created   []model.Engagement
}

func (c *fakeClient) Begin(context.Context) (store.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}

func (c *fakeClient) ActiveEngagement(context.Context, string) (*model.Engagement, error) {
	return c.active, c.readErr
}

func (c *fakeClient) ManagingUser(context.Context, string) (*model.User, error) {
	return c.manager, c.readErr
}

func (c *fakeClient) ConflictOwner(context.Context, string) (*model.ConflictReport, error) {
	return c.owner, c.readErr
}

func (c *fakeClient) CreateEngagement(_ context.Context, e model.Engagement) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, e)
	return nil
}

func (c *fakeClient) ListProjects(context.Context) ([]model.Project, error) {
	return nil, c.readErr
}
