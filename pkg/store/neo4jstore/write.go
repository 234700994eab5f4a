package neo4jstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Begin opens a write session and an explicit transaction on it.
func (c *Client) Begin(ctx context.Context) (store.Tx, error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	inner, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, mapErr("begin", err)
	}
	return &tx{session: session, inner: inner}, nil
}

// lockVendorQuery takes a write lock on the vendor node and counts its active
// engagements. It returns no row when the vendor does not exist.
const lockVendorQuery = `
	MATCH (v:Vendor {name: $vendor})
	WITH v LIMIT 1
	SET v._lock = true
	WITH v
	OPTIONAL MATCH (v)<-[r:USES_VENDOR]-(:Project)
	WHERE r.end IS NULL
	RETURN v.name AS vendor, count(r) AS active
`

const createEngagementQuery = `
	MATCH (p:Project {name: $project})
	WITH p LIMIT 1
	MATCH (v:Vendor {name: $vendor})
	WITH p, v LIMIT 1
	REMOVE v._lock
	CREATE (p)-[r:USES_VENDOR {type: $type, start: $start, end: $end}]->(v)
	RETURN type(r) AS rel
`

// CreateEngagement checks and writes inside one explicit transaction. The
// vendor lock serializes concurrent writers until commit.
func (c *Client) CreateEngagement(ctx context.Context, e model.Engagement) error {
	e.End = nil
	return c.writeEngagement(ctx, "create_engagement", e)
}

// RecordEngagement writes an engagement with the given dates. Closed ones skip
// the active check.
func (c *Client) RecordEngagement(ctx context.Context, e model.Engagement) error {
	return c.writeEngagement(ctx, "record_engagement", e)
}

func (c *Client) writeEngagement(ctx context.Context, op string, e model.Engagement) (err error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	txn, err := session.BeginTransaction(ctx)
	if err != nil {
		return mapErr(op, err)
	}
	defer func() {
		if err != nil {
			txn.Rollback(ctx)
		}
	}()

	result, err := txn.Run(ctx, lockVendorQuery, map[string]any{"vendor": e.Vendor})
	if err != nil {
		return mapErr(op, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return mapErr(op, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: vendor %q: %w", op, e.Vendor, store.ErrNotFound)
	}
	if e.End == nil && getInt64FromRecord(records[0], "active") > 0 {
		c.logger.Debug("engagement rejected by vendor lock check", logging.Vendor(e.Vendor), logging.Project(e.Project))
		return fmt.Errorf("%s: vendor %q: %w", op, e.Vendor, store.ErrVendorEngaged)
	}

	params := map[string]any{
		"project": e.Project,
		"vendor":  e.Vendor,
		"type":    e.Type,
		"start":   neo4j.DateOf(e.Start),
		"end":     nil,
	}
	if e.End != nil {
		params["end"] = neo4j.DateOf(*e.End)
	}
	result, err = txn.Run(ctx, createEngagementQuery, params)
	if err != nil {
		return mapErr(op, err)
	}
	records, err = result.Collect(ctx)
	if err != nil {
		return mapErr(op, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: project %q: %w", op, e.Project, store.ErrNotFound)
	}

	return mapErr(op, txn.Commit(ctx))
}

const ensureUserQuery = `MERGE (:User {name: $name})`
const ensureVendorQuery = `MERGE (:Vendor {name: $name})`

func (c *Client) EnsureUser(ctx context.Context, u model.User) error {
	return c.write(ctx, "ensure_user", ensureUserQuery, map[string]any{"name": u.Name})
}

func (c *Client) EnsureVendor(ctx context.Context, v model.Vendor) error {
	return c.write(ctx, "ensure_vendor", ensureVendorQuery, map[string]any{"name": v.Name})
}

func (c *Client) write(ctx context.Context, op, cypher string, params map[string]any) error {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return mapErr(op, err)
	}
	_, err = result.Consume(ctx)
	return mapErr(op, err)
}

const createProjectQuery = `
	MATCH (u:User)
	WHERE u.name = $username
	WITH u LIMIT 1
	CREATE (p:Project {id: $id, name: $name})<-[:MANAGES]-(u)
	RETURN p.id AS id, p.name AS name
`

// tx owns its session until Commit or Rollback.
type tx struct {
	session neo4j.SessionWithContext
	inner   neo4j.ExplicitTransaction

	mu   sync.Mutex
	done bool
}

func (t *tx) CreateProject(ctx context.Context, managingUser string, p model.Project) (*model.Project, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, store.ErrTxDone
	}

	result, err := t.inner.Run(ctx, createProjectQuery, map[string]any{
		"username": managingUser,
		"id":       p.ID,
		"name":     p.Name,
	})
	if err != nil {
		return nil, mapErr("create_project", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, mapErr("create_project", err)
		}
		return nil, nil
	}
	rec := result.Record()
	return &model.Project{
		ID:   getStringFromRecord(rec, "id"),
		Name: getStringFromRecord(rec, "name"),
	}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	defer t.session.Close(ctx)
	return mapErr("commit", t.inner.Commit(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)
	return mapErr("rollback", t.inner.Rollback(ctx))
}
