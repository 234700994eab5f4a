// Package storetest holds the behaviour every store.Client backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Factory returns an empty, ready client that also implements store.Seeder.
// The factory registers its own cleanup.
type Factory func(t *testing.T) store.Client

// Run executes the conformance suite against clients produced by newClient.
func Run(t *testing.T, newClient Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, c store.Client, s store.Seeder)
	}{
		{"CreateProjectCommit", testCreateProjectCommit},
		{"CreateProjectUnknownUser", testCreateProjectUnknownUser},
		{"RollbackDiscards", testRollbackDiscards},
		{"TxDoneAfterCommit", testTxDoneAfterCommit},
		{"EngagementLifecycle", testEngagementLifecycle},
		{"EngagementMissingEndpoints", testEngagementMissingEndpoints},
		{"ClosedEngagementsIgnored", testClosedEngagementsIgnored},
		{"ConflictOwner", testConflictOwner},
		{"ConcurrentEngagements", testConcurrentEngagements},
		{"SeedingIsIdempotent", testSeedingIsIdempotent},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t)
			s, ok := c.(store.Seeder)
			require.True(t, ok, "client must implement store.Seeder")
			tt.fn(t, c, s)
		})
	}
}

// CreateProject opens a transaction, creates a project for user and commits.
func CreateProject(t *testing.T, c store.Client, user, name string) model.Project {
	t.Helper()
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	p, err := tx.CreateProject(ctx, user, model.Project{ID: uuid.NewString(), Name: name})
	require.NoError(t, err)
	require.NotNil(t, p, "user %q should exist", user)
	require.NoError(t, tx.Commit(ctx))
	return *p
}

func seed(t *testing.T, s store.Seeder, users []string, vendors []string) {
	t.Helper()
	ctx := context.Background()
	for _, u := range users {
		require.NoError(t, s.EnsureUser(ctx, model.User{Name: u}))
	}
	for _, v := range vendors {
		require.NoError(t, s.EnsureVendor(ctx, model.Vendor{Name: v}))
	}
}

func prime(project, vendor string) model.Engagement {
	return model.Engagement{
		Project: project,
		Vendor:  vendor,
		Type:    model.EngagementTypePrime,
		Start:   model.Date(time.Now()),
	}
}

func testCreateProjectCommit(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice"}, nil)

	id := uuid.NewString()
	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	p, err := tx.CreateProject(ctx, "alice", model.Project{ID: id, Name: "Apollo"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Apollo", p.Name)
	require.NoError(t, tx.Commit(ctx))

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Project{{ID: id, Name: "Apollo"}}, projects)

	u, err := c.ManagingUser(ctx, "Apollo")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Name)

	u, err = c.ManagingUser(ctx, "Nonexistent")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func testCreateProjectUnknownUser(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	p, err := tx.CreateProject(ctx, "ghost", model.Project{ID: uuid.NewString(), Name: "Apollo"})
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NoError(t, tx.Rollback(ctx))

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func testRollbackDiscards(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice"}, nil)

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	p, err := tx.CreateProject(ctx, "alice", model.Project{ID: uuid.NewString(), Name: "Apollo"})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx), "second rollback is a no-op")

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	u, err := c.ManagingUser(ctx, "Apollo")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func testTxDoneAfterCommit(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice"}, nil)

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	_, err = tx.CreateProject(ctx, "alice", model.Project{ID: uuid.NewString(), Name: "Late"})
	assert.ErrorIs(t, err, store.ErrTxDone)
	assert.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
	assert.NoError(t, tx.Rollback(ctx))
}

func testEngagementLifecycle(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice", "bob"}, []string{"Acme"})
	CreateProject(t, c, "alice", "Apollo")
	CreateProject(t, c, "bob", "Gemini")

	e, err := c.ActiveEngagement(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, c.CreateEngagement(ctx, prime("Apollo", "Acme")))

	e, err = c.ActiveEngagement(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Active())
	assert.Equal(t, "Apollo", e.Project)
	assert.Equal(t, "Acme", e.Vendor)
	assert.Equal(t, model.EngagementTypePrime, e.Type)
	assert.WithinDuration(t, model.Date(time.Now()), e.Start, 24*time.Hour)

	err = c.CreateEngagement(ctx, prime("Gemini", "Acme"))
	assert.ErrorIs(t, err, store.ErrVendorEngaged)

	e, err = c.ActiveEngagement(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Apollo", e.Project, "losing write must not replace the winner")
}

func testEngagementMissingEndpoints(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice"}, []string{"Acme"})
	CreateProject(t, c, "alice", "Apollo")

	assert.ErrorIs(t, c.CreateEngagement(ctx, prime("Apollo", "Initech")), store.ErrNotFound)
	assert.ErrorIs(t, c.CreateEngagement(ctx, prime("Nowhere", "Acme")), store.ErrNotFound)

	e, err := c.ActiveEngagement(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func testClosedEngagementsIgnored(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice"}, []string{"Acme"})
	CreateProject(t, c, "alice", "Apollo")

	closed := prime("Apollo", "Acme")
	closed.Start = model.Date(time.Now().AddDate(-1, 0, 0))
	end := model.Date(time.Now().AddDate(0, -1, 0))
	closed.End = &end
	require.NoError(t, s.RecordEngagement(ctx, closed))

	e, err := c.ActiveEngagement(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, e, "closed engagement must not count")

	owner, err := c.ConflictOwner(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, owner)

	if lister, ok := c.(store.Engagements); ok {
		all, err := lister.Engagements(ctx, "Acme")
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.NotNil(t, all[0].End)
		assert.True(t, all[0].End.Equal(end))
	}

	require.NoError(t, c.CreateEngagement(ctx, prime("Apollo", "Acme")))
}

func testConflictOwner(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice"}, []string{"Acme", "Globex"})
	CreateProject(t, c, "alice", "Apollo")
	require.NoError(t, c.CreateEngagement(ctx, prime("Apollo", "Acme")))

	r, err := c.ConflictOwner(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "Apollo", r.Project)
	assert.Equal(t, "alice", r.ManagingUser)
	assert.Equal(t, "Acme", r.Vendor)
	assert.Equal(t, model.EngagementTypePrime, r.Type)

	r, err = c.ConflictOwner(ctx, "Globex")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func testConcurrentEngagements(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	const workers = 8
	seed(t, s, []string{"alice"}, []string{"Acme"})
	for i := 0; i < workers; i++ {
		CreateProject(t, c, "alice", fmt.Sprintf("Project-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.CreateEngagement(ctx, prime(fmt.Sprintf("Project-%d", i), "Acme"))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, store.ErrVendorEngaged):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one engagement may be created")
}

func testSeedingIsIdempotent(t *testing.T, c store.Client, s store.Seeder) {
	ctx := context.Background()
	seed(t, s, []string{"alice", "alice"}, []string{"Acme", "Acme"})
	CreateProject(t, c, "alice", "Apollo")

	// Duplicate users would create one MANAGES edge each.
	u, err := c.ManagingUser(ctx, "Apollo")
	require.NoError(t, err)
	require.NotNil(t, u)

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	require.NoError(t, c.CreateEngagement(ctx, prime("Apollo", "Acme")))
}

func testPing(t *testing.T, c store.Client, s store.Seeder) {
	assert.NoError(t, c.Ping(context.Background()))
}
