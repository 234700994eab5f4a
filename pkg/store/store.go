// Package store defines the graph store port used by the deconfliction
// services. Each backend translates these domain operations into its own
// query form and reports failures with the sentinels in errors.go.
package store

import (
	"context"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

// Client is a pooled handle on the graph store. Implementations must be safe
// for concurrent use.
type Client interface {
	// Begin opens an explicit write transaction.
	Begin(ctx context.Context) (Tx, error)

	// ActiveEngagement returns the first USES_VENDOR relation into the named
	// vendor that has no end date, or nil when there is none.
	ActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error)

	// ManagingUser returns the user with a MANAGES relation to the named
	// project, or nil when there is none.
	ManagingUser(ctx context.Context, project string) (*model.User, error)

	// CreateEngagement creates a USES_VENDOR relation between existing
	// project and vendor nodes. It fails with ErrVendorEngaged when the vendor
	// already has an active engagement at write time and ErrNotFound when
	// either endpoint is missing.
	CreateEngagement(ctx context.Context, e model.Engagement) error

	// ConflictOwner follows vendor <- active USES_VENDOR <- project <- MANAGES <- user
	// and returns nil when the traversal finds nothing.
	ConflictOwner(ctx context.Context, vendor string) (*model.ConflictReport, error)

	ListProjects(ctx context.Context) ([]model.Project, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is a write transaction. Nothing it writes is visible until Commit.
type Tx interface {
	// CreateProject matches the managing user, creates the project and the
	// MANAGES relation, and returns the created project. It returns nil with no
	// error when the user does not exist.
	CreateProject(ctx context.Context, managingUser string, p model.Project) (*model.Project, error)
	Commit(ctx context.Context) error
	// Rollback is safe to call after Commit or a previous Rollback.
	Rollback(ctx context.Context) error
}

// Seeder loads fixtures. EnsureUser and EnsureVendor are idempotent.
// RecordEngagement writes a USES_VENDOR relation with the given dates; an
// active one is still subject to the one-active-engagement rule.
type Seeder interface {
	EnsureUser(ctx context.Context, u model.User) error
	EnsureVendor(ctx context.Context, v model.Vendor) error
	RecordEngagement(ctx context.Context, e model.Engagement) error
}

// Engagements is implemented by backends that can list every USES_VENDOR
// relation of a vendor, closed ones included.
type Engagements interface {
	Engagements(ctx context.Context, vendor string) ([]model.Engagement, error)
}
