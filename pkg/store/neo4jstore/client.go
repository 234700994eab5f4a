// Package neo4jstore implements store.Client with Cypher over the Neo4j Bolt driver.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Options mirror the connection settings of the store section in the config file.
type Options struct {
	URI            string
	Username       string
	Password       string
	Database       string
	FetchSize      int
	MaxConnections int
	Logger         logging.Logger
}

// Client is a store.Client backed by a Neo4j driver.
type Client struct {
	driver    neo4j.DriverWithContext
	database  string
	fetchSize int
	logger    logging.Logger
}

var (
	_ store.Client      = (*Client)(nil)
	_ store.Seeder      = (*Client)(nil)
	_ store.Engagements = (*Client)(nil)
)

// Connect creates the driver and verifies connectivity once.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10
	}
	if opts.FetchSize <= 0 {
		opts.FetchSize = 500
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	uri := NormalizeURI(opts.URI)
	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(opts.Username, opts.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = opts.MaxConnections
		})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, store.Unavailable("connect", err)
	}

	c := &Client{
		driver:    driver,
		database:  opts.Database,
		fetchSize: opts.FetchSize,
		logger:    opts.Logger.With(logging.Component("neo4j-store")),
	}
	c.logger.Info("connected to neo4j", logging.String("uri", uri), logging.String("database", opts.Database))
	return c, nil
}

// NormalizeURI adds the bolt scheme to bare host:port addresses.
func NormalizeURI(uri string) string {
	if uri == "" {
		return "bolt://127.0.0.1:7687"
	}
	if !strings.Contains(uri, "://") {
		return "bolt://" + uri
	}
	return uri
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.database,
		FetchSize:    c.fetchSize,
	})
}

// mapErr translates driver failures into store sentinels.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVendorEngaged), errors.Is(err, store.ErrTxDone):
		return err
	case neo4j.IsConnectivityError(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return store.Unavailable(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// readAll runs a read query in its own session and collects every record.
func (c *Client) readAll(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, mapErr(op, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return records, nil
}

const activeEngagementQuery = `
	MATCH (v:Vendor {name: $vendor})<-[r:USES_VENDOR]-(p:Project)
	WHERE r.end IS NULL
	RETURN p.name AS project, v.name AS vendor, r.type AS type, r.start AS start, r.end AS end
	LIMIT 1
`

func (c *Client) ActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error) {
	records, err := c.readAll(ctx, "active_engagement", activeEngagementQuery, map[string]any{"vendor": vendor})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	e := engagementFromRecord(records[0])
	return &e, nil
}

const managingUserQuery = `
	MATCH (u:User)-[:MANAGES]->(p:Project {name: $project})
	RETURN u.name AS name
	LIMIT 1
`

func (c *Client) ManagingUser(ctx context.Context, project string) (*model.User, error) {
	records, err := c.readAll(ctx, "managing_user", managingUserQuery, map[string]any{"project": project})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &model.User{Name: getStringFromRecord(records[0], "name")}, nil
}

const conflictOwnerQuery = `
	MATCH (v:Vendor {name: $vendor})<-[r:USES_VENDOR]-(p:Project)<-[:MANAGES]-(u:User)
	WHERE r.end IS NULL
	RETURN p.name AS project, u.name AS user, v.name AS vendor, r.type AS type
	LIMIT 1
`

func (c *Client) ConflictOwner(ctx context.Context, vendor string) (*model.ConflictReport, error) {
	records, err := c.readAll(ctx, "conflict_owner", conflictOwnerQuery, map[string]any{"vendor": vendor})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	rec := records[0]
	return &model.ConflictReport{
		Project:      getStringFromRecord(rec, "project"),
		ManagingUser: getStringFromRecord(rec, "user"),
		Vendor:       getStringFromRecord(rec, "vendor"),
		Type:         getStringFromRecord(rec, "type"),
	}, nil
}

const listProjectsQuery = `
	MATCH (p:Project)
	RETURN p.id AS id, p.name AS name
`

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	records, err := c.readAll(ctx, "list_projects", listProjectsQuery, nil)
	if err != nil {
		return nil, err
	}
	projects := make([]model.Project, 0, len(records))
	for _, rec := range records {
		projects = append(projects, model.Project{
			ID:   getStringFromRecord(rec, "id"),
			Name: getStringFromRecord(rec, "name"),
		})
	}
	return projects, nil
}

const engagementsQuery = `
	MATCH (v:Vendor {name: $vendor})<-[r:USES_VENDOR]-(p:Project)
	RETURN p.name AS project, v.name AS vendor, r.type AS type, r.start AS start, r.end AS end
	ORDER BY r.start
`

// Engagements lists every USES_VENDOR relation into the vendor, closed ones included.
func (c *Client) Engagements(ctx context.Context, vendor string) ([]model.Engagement, error) {
	records, err := c.readAll(ctx, "engagements", engagementsQuery, map[string]any{"vendor": vendor})
	if err != nil {
		return nil, err
	}
	out := make([]model.Engagement, 0, len(records))
	for _, rec := range records {
		out = append(out, engagementFromRecord(rec))
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return mapErr("ping", c.driver.VerifyConnectivity(ctx))
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func engagementFromRecord(rec *neo4j.Record) model.Engagement {
	e := model.Engagement{
		Project: getStringFromRecord(rec, "project"),
		Vendor:  getStringFromRecord(rec, "vendor"),
		Type:    getStringFromRecord(rec, "type"),
		Start:   getDateFromRecord(rec, "start"),
	}
	if end := getDateFromRecord(rec, "end"); !end.IsZero() {
		e.End = &end
	}
	return e
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	return 0
}

// getDateFromRecord accepts Cypher dates and datetimes and returns a UTC day.
func getDateFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	switch v := val.(type) {
	case neo4j.Date:
		return model.Date(v.Time())
	case time.Time:
		return model.Date(v)
	case neo4j.LocalDateTime:
		return model.Date(v.Time())
	case string:
		t, err := time.Parse(model.DateLayout, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
