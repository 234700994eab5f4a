package deconflict

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// ProjectService creates projects together with their MANAGES relation.
type ProjectService struct {
	client store.Client
	options
}

func NewProjectService(client store.Client, opts ...Option) *ProjectService {
	o := newOptions(opts)
	o.logger = o.logger.With(logging.Component("projects"))
	return &ProjectService{client: client, options: o}
}

// CreateProject creates a project managed by managingUser in one transaction.
// Either the project and its MANAGES relation both exist afterwards or
// neither does. Errors are never retried.
func (s *ProjectService) CreateProject(ctx context.Context, managingUser, projectName string) (project *model.Project, err error) {
	const op = "CreateProject"

	event := audit.NewEvent(managingUser, audit.ActionCreateProject, audit.ResourceProject, projectName)
	defer func() {
		if project != nil {
			event.ResourceID = project.ID
			event.With("name", project.Name)
			event.Outcome = "created"
		}
		s.record(event.WithError(err))
		s.metrics.RecordProjectCreated(err == nil)
	}()

	if projectName == "" {
		return nil, opError(op, ErrInputInvalid, errors.New("project name is required"))
	}
	if managingUser == "" {
		return nil, opError(op, ErrInputInvalid, errors.New("managing user is required"))
	}

	id := uuid.New().String()
	logger := s.logger.With(logging.User(managingUser), logging.Project(projectName), logging.String("id", id))

	tx, err := s.client.Begin(ctx)
	if err != nil {
		return nil, storeError(op, err)
	}

	created, err := tx.CreateProject(ctx, managingUser, model.Project{ID: id, Name: projectName})
	if err != nil {
		return nil, s.abort(ctx, tx, opError(op, ErrTransactionAborted, storeError("create statement", err)))
	}
	if created == nil {
		return nil, s.abort(ctx, tx, opError(op, ErrTransactionAborted,
			fmt.Errorf("%w: user %q not found", ErrProjectNotCreated, managingUser)))
	}
	if created.ID != id {
		return nil, s.abort(ctx, tx, opError(op, ErrConsistencyViolation,
			fmt.Errorf("store returned project id %q, generated %q", created.ID, id)))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.abort(ctx, tx, opError(op, ErrTransactionAborted, storeError("commit", err)))
	}

	logger.Info("project created")
	return created, nil
}

// abort rolls tx back and returns cause, joined with the rollback error if
// rollback also failed.
func (s *ProjectService) abort(ctx context.Context, tx store.Tx, cause error) error {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("rollback failed", logging.Error(err), logging.String("cause", cause.Error()))
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

// ListProjects returns every project as {id, name}.
func (s *ProjectService) ListProjects(ctx context.Context) ([]model.Project, error) {
	projects, err := s.client.ListProjects(ctx)
	if err != nil {
		return nil, storeError("ListProjects", err)
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return projects, nil
}
