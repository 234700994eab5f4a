package api

import (
	"context"
	"net/http"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/validation"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	// The shared call must not die with whichever caller started it; the
	// store timeout still bounds it.
	ctx := context.WithoutCancel(r.Context())
	v, err, _ := s.listGroup.Do("projects", func() (any, error) {
		return s.cfg.Projects.ListProjects(ctx)
	})
	if err != nil {
		s.fail(w, r, "list projects", err)
		return
	}
	respondJSON(w, http.StatusOK, ProjectsResponse{Projects: v.([]model.Project)})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req validation.CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}

	project, err := s.cfg.Projects.CreateProject(r.Context(), req.User, req.Name)
	if err != nil {
		s.fail(w, r, "create project", err)
		return
	}
	w.Header().Set("Location", "/projects/"+project.ID)
	respondJSON(w, http.StatusCreated, project)
}
