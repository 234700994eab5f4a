package store

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

// stubClient answers from fields and optionally blocks until the context ends.
type stubClient struct {
	engagement *model.Engagement
	err        error
	block      bool
	closed     bool
}

func (s *stubClient) wait(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *stubClient) Begin(ctx context.Context) (Tx, error) { return &stubTx{}, s.wait(ctx) }
func (s *stubClient) ActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.engagement, nil
}
func (s *stubClient) ManagingUser(ctx context.Context, project string) (*model.User, error) {
	return nil, s.wait(ctx)
}
func (s *stubClient) CreateEngagement(ctx context.Context, e model.Engagement) error {
	return s.wait(ctx)
}
func (s *stubClient) ConflictOwner(ctx context.Context, vendor string) (*model.ConflictReport, error) {
	return nil, s.wait(ctx)
}
func (s *stubClient) ListProjects(ctx context.Context) ([]model.Project, error) {
	return nil, s.wait(ctx)
}
func (s *stubClient) Ping(ctx context.Context) error { return s.wait(ctx) }
func (s *stubClient) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

type stubTx struct{ committed bool }

func (t *stubTx) CreateProject(ctx context.Context, user string, p model.Project) (*model.Project, error) {
	return &p, nil
}
func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *stubTx) Rollback(ctx context.Context) error { return nil }

func storeCounter(t *testing.T, reg *metrics.Registry, op, status string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, reg.StoreOperationsTotal.WithLabelValues("stub", op, status).Write(&m))
	return m.Counter.GetValue()
}

func TestInstrumentedPassesThrough(t *testing.T) {
	reg := metrics.NewRegistry()
	want := &model.Engagement{Project: "Apollo", Vendor: "Acme", Type: model.EngagementTypePrime}
	inner := &stubClient{engagement: want}
	c := Instrument(inner, InstrumentOptions{Backend: "stub", Metrics: reg})

	got, err := c.ActiveEngagement(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, float64(1), storeCounter(t, reg, "active_engagement", "success"))
	assert.Same(t, inner, c.Unwrap())

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, inner.closed)
}

func TestInstrumentedTimeoutIsUnavailable(t *testing.T) {
	reg := metrics.NewRegistry()
	c := Instrument(&stubClient{block: true}, InstrumentOptions{
		Backend: "stub",
		Timeout: 20 * time.Millisecond,
		Metrics: reg,
	})

	start := time.Now()
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsUnavailable(err))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, float64(1), storeCounter(t, reg, "ping", "error"))
}

func TestInstrumentedDomainAnswersCountAsSuccess(t *testing.T) {
	reg := metrics.NewRegistry()
	c := Instrument(&stubClient{err: ErrVendorEngaged}, InstrumentOptions{Backend: "stub", Metrics: reg})

	err := c.CreateEngagement(context.Background(), model.Engagement{Vendor: "Acme", Project: "Apollo"})
	assert.ErrorIs(t, err, ErrVendorEngaged)
	assert.False(t, IsUnavailable(err))
	assert.Equal(t, float64(1), storeCounter(t, reg, "create_engagement", "success"))
}

func TestInstrumentedTxIsWrapped(t *testing.T) {
	reg := metrics.NewRegistry()
	c := Instrument(&stubClient{}, InstrumentOptions{Backend: "stub", Metrics: reg})

	tx, err := c.Begin(context.Background())
	require.NoError(t, err)
	p, err := tx.CreateProject(context.Background(), "alice", model.Project{ID: "1", Name: "Apollo"})
	require.NoError(t, err)
	assert.Equal(t, "Apollo", p.Name)
	require.NoError(t, tx.Commit(context.Background()))

	assert.Equal(t, float64(1), storeCounter(t, reg, "create_project", "success"))
	assert.Equal(t, float64(1), storeCounter(t, reg, "commit", "success"))
}

func TestInstrumentedOptionalInterfaces(t *testing.T) {
	c := Instrument(&stubClient{}, InstrumentOptions{})

	assert.ErrorIs(t, c.EnsureUser(context.Background(), model.User{Name: "a"}), ErrUnsupported)
	assert.ErrorIs(t, c.EnsureVendor(context.Background(), model.Vendor{Name: "b"}), ErrUnsupported)
	_, err := c.Engagements(context.Background(), "b")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestUnavailableWrapping(t *testing.T) {
	assert.Nil(t, Unavailable("op", nil))

	cause := errors.New("connection refused")
	err := Unavailable("ping", cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, Unavailable("again", err))
}
