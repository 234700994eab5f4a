package store

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

// DefaultQueryTimeout bounds every store call when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// InstrumentOptions configures Instrument.
type InstrumentOptions struct {
	Backend string
	Timeout time.Duration
	Metrics *metrics.Registry
	Logger  logging.Logger
}

// Instrumented decorates a Client with a per-call timeout, metrics and debug
// logging. Timeouts surface as ErrUnavailable.
type Instrumented struct {
	inner   Client
	backend string
	timeout time.Duration
	metrics *metrics.Registry
	logger  logging.Logger
}

var (
	_ Client      = (*Instrumented)(nil)
	_ Seeder      = (*Instrumented)(nil)
	_ Engagements = (*Instrumented)(nil)
)

// Instrument wraps inner. Zero-valued options fall back to a 5s timeout, the
// default metrics registry and a no-op logger.
func Instrument(inner Client, opts InstrumentOptions) *Instrumented {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQueryTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Backend == "" {
		opts.Backend = "unknown"
	}
	return &Instrumented{
		inner:   inner,
		backend: opts.Backend,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  opts.Logger.With(logging.Component("store"), logging.Backend(opts.Backend)),
	}
}

// Unwrap returns the decorated client
func (c *Instrumented) Unwrap() Client {
	return c.inner
}

// call runs fn under the timeout and records the result. Expected domain
// answers (engaged, not found) are counted as success.
func (c *Instrumented) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timer := logging.StartTimer(c.logger, "store call", logging.Operation(op))
	err := fn(ctx)
	if err != nil && !errors.Is(err, ErrUnavailable) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		err = Unavailable(op, err)
	}

	status := "success"
	switch {
	case err == nil, errors.Is(err, ErrVendorEngaged), errors.Is(err, ErrNotFound):
		timer.End()
	default:
		status = "error"
		timer.EndError(err)
	}
	c.metrics.RecordStoreOperation(c.backend, op, status, timer.Elapsed())
	return err
}

func (c *Instrumented) Begin(ctx context.Context) (Tx, error) {
	var tx Tx
	err := c.call(ctx, "begin", func(ctx context.Context) error {
		var err error
		tx, err = c.inner.Begin(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &instrumentedTx{inner: tx, client: c}, nil
}

func (c *Instrumented) ActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error) {
	var e *model.Engagement
	err := c.call(ctx, "active_engagement", func(ctx context.Context) error {
		var err error
		e, err = c.inner.ActiveEngagement(ctx, vendor)
		return err
	})
	return e, err
}

func (c *Instrumented) ManagingUser(ctx context.Context, project string) (*model.User, error) {
	var u *model.User
	err := c.call(ctx, "managing_user", func(ctx context.Context) error {
		var err error
		u, err = c.inner.ManagingUser(ctx, project)
		return err
	})
	return u, err
}

func (c *Instrumented) CreateEngagement(ctx context.Context, e model.Engagement) error {
	return c.call(ctx, "create_engagement", func(ctx context.Context) error {
		return c.inner.CreateEngagement(ctx, e)
	})
}

func (c *Instrumented) ConflictOwner(ctx context.Context, vendor string) (*model.ConflictReport, error) {
	var r *model.ConflictReport
	err := c.call(ctx, "conflict_owner", func(ctx context.Context) error {
		var err error
		r, err = c.inner.ConflictOwner(ctx, vendor)
		return err
	})
	return r, err
}

func (c *Instrumented) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := c.call(ctx, "list_projects", func(ctx context.Context) error {
		var err error
		projects, err = c.inner.ListProjects(ctx)
		return err
	})
	return projects, err
}

func (c *Instrumented) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", c.inner.Ping)
}

func (c *Instrumented) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

func (c *Instrumented) EnsureUser(ctx context.Context, u model.User) error {
	seeder, ok := c.inner.(Seeder)
	if !ok {
		return ErrUnsupported
	}
	return c.call(ctx, "ensure_user", func(ctx context.Context) error {
		return seeder.EnsureUser(ctx, u)
	})
}

func (c *Instrumented) EnsureVendor(ctx context.Context, v model.Vendor) error {
	seeder, ok := c.inner.(Seeder)
	if !ok {
		return ErrUnsupported
	}
	return c.call(ctx, "ensure_vendor", func(ctx context.Context) error {
		return seeder.EnsureVendor(ctx, v)
	})
}

func (c *Instrumented) RecordEngagement(ctx context.Context, e model.Engagement) error {
	seeder, ok := c.inner.(Seeder)
	if !ok {
		return ErrUnsupported
	}
	return c.call(ctx, "record_engagement", func(ctx context.Context) error {
		return seeder.RecordEngagement(ctx, e)
	})
}

func (c *Instrumented) Engagements(ctx context.Context, vendor string) ([]model.Engagement, error) {
	lister, ok := c.inner.(Engagements)
	if !ok {
		return nil, ErrUnsupported
	}
	var out []model.Engagement
	err := c.call(ctx, "engagements", func(ctx context.Context) error {
		var err error
		out, err = lister.Engagements(ctx, vendor)
		return err
	})
	return out, err
}

type instrumentedTx struct {
	inner  Tx
	client *Instrumented
}

func (t *instrumentedTx) CreateProject(ctx context.Context, managingUser string, p model.Project) (*model.Project, error) {
	var created *model.Project
	err := t.client.call(ctx, "create_project", func(ctx context.Context) error {
		var err error
		created, err = t.inner.CreateProject(ctx, managingUser, p)
		return err
	})
	return created, err
}

func (t *instrumentedTx) Commit(ctx context.Context) error {
	return t.client.call(ctx, "commit", t.inner.Commit)
}

func (t *instrumentedTx) Rollback(ctx context.Context) error {
	return t.client.call(ctx, "rollback", t.inner.Rollback)
}
