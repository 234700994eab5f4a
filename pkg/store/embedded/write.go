package embedded

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// errExists aborts an idempotent insert whose node appeared concurrently.
var errExists = errors.New("node already exists")

func (c *Client) Begin(ctx context.Context) (store.Tx, error) {
	release, err := c.acquire(ctx, "begin")
	if err != nil {
		return nil, err
	}
	inner, err := c.graph.BeginTransaction()
	if err != nil {
		release()
		return nil, mapErr("begin", err)
	}
	return &tx{client: c, inner: inner, release: release}, nil
}

// CreateEngagement writes an active engagement. The vendor check runs under
// the storage write lock, so two concurrent writers cannot both succeed.
func (c *Client) CreateEngagement(ctx context.Context, e model.Engagement) error {
	e.End = nil
	return c.writeEngagement(ctx, "create_engagement", e)
}

// RecordEngagement writes an engagement with the given dates. Only active
// engagements are checked against the vendor's existing ones.
func (c *Client) RecordEngagement(ctx context.Context, e model.Engagement) error {
	return c.writeEngagement(ctx, "record_engagement", e)
}

func (c *Client) writeEngagement(ctx context.Context, op string, e model.Engagement) error {
	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	var projectID, vendorID uint64
	err = c.graph.Read(func(r storage.GraphReader) error {
		p := findNamed(r, model.LabelProject, e.Project)
		if p == nil {
			return fmt.Errorf("project %q: %w", e.Project, store.ErrNotFound)
		}
		v := findNamed(r, model.LabelVendor, e.Vendor)
		if v == nil {
			return fmt.Errorf("vendor %q: %w", e.Vendor, store.ErrNotFound)
		}
		projectID, vendorID = p.ID, v.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return mapErr(op, err)
	}

	inner, err := c.graph.BeginTransaction()
	if err != nil {
		return mapErr(op, err)
	}
	if _, err := inner.CreateEdge(projectID, vendorID, model.RelUsesVendor, engagementProperties(e)); err != nil {
		inner.Rollback()
		return mapErr(op, err)
	}
	if e.End == nil {
		inner.Guard(func(r storage.GraphReader) error {
			active, err := activeEngagements(r, vendorID)
			if err != nil {
				return err
			}
			if len(active) > 0 {
				return store.ErrVendorEngaged
			}
			return nil
		})
	}
	if err := ctx.Err(); err != nil {
		inner.Rollback()
		return store.Unavailable(op, err)
	}

	if err := inner.Commit(); err != nil {
		if errors.Is(err, store.ErrVendorEngaged) {
			c.logger.Debug("engagement rejected by guard", logging.Vendor(e.Vendor), logging.Project(e.Project))
			return fmt.Errorf("%s: vendor %q: %w", op, e.Vendor, err)
		}
		return mapErr(op, err)
	}
	c.afterCommit()
	return nil
}

func (c *Client) EnsureUser(ctx context.Context, u model.User) error {
	return c.ensureNamed(ctx, "ensure_user", model.LabelUser, u.Name)
}

func (c *Client) EnsureVendor(ctx context.Context, v model.Vendor) error {
	return c.ensureNamed(ctx, "ensure_vendor", model.LabelVendor, v.Name)
}

func (c *Client) ensureNamed(ctx context.Context, op, label, name string) error {
	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	inner, err := c.graph.BeginTransaction()
	if err != nil {
		return mapErr(op, err)
	}
	if _, err := inner.CreateNode([]string{label}, map[string]storage.Value{
		model.PropName: storage.StringValue(name),
	}); err != nil {
		inner.Rollback()
		return mapErr(op, err)
	}
	inner.Guard(func(r storage.GraphReader) error {
		if findNamed(r, label, name) != nil {
			return errExists
		}
		return nil
	})

	if err := inner.Commit(); err != nil {
		if errors.Is(err, errExists) {
			return nil
		}
		return mapErr(op, err)
	}
	c.afterCommit()
	return nil
}

// tx holds a pool slot from Begin until Commit or Rollback.
type tx struct {
	client  *Client
	inner   *storage.Transaction
	release func()

	mu   sync.Mutex
	done bool
}

func (t *tx) CreateProject(ctx context.Context, managingUser string, p model.Project) (*model.Project, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, store.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, store.Unavailable("create_project", err)
	}

	var user *storage.Node
	if err := t.client.graph.Read(func(r storage.GraphReader) error {
		user = findNamed(r, model.LabelUser, managingUser)
		return nil
	}); err != nil {
		return nil, mapErr("create_project", err)
	}
	if user == nil {
		return nil, nil
	}

	node, err := t.inner.CreateNode([]string{model.LabelProject}, map[string]storage.Value{
		model.PropID:   storage.StringValue(p.ID),
		model.PropName: storage.StringValue(p.Name),
	})
	if err != nil {
		return nil, mapErr("create_project", err)
	}
	if err := t.client.fault(StageProjectNodeCreated); err != nil {
		return nil, err
	}
	if _, err := t.inner.CreateEdge(user.ID, node.ID, model.RelManages, nil); err != nil {
		return nil, mapErr("create_project", err)
	}

	return &model.Project{
		ID:   node.StringProperty(model.PropID),
		Name: node.StringProperty(model.PropName),
	}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	defer t.release()

	if err := ctx.Err(); err != nil {
		t.inner.Rollback()
		return store.Unavailable("commit", err)
	}
	if err := t.inner.Commit(); err != nil {
		return mapErr("commit", err)
	}
	t.client.afterCommit()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}
	t.done = true
	defer t.release()
	return mapErr("rollback", t.inner.Rollback())
}
