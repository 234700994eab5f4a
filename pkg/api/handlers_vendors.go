package api

import (
	"net/http"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
	"github.com/dd0wney/cluso-deconflict/pkg/validation"
)

func (s *Server) handleVendorRequest(w http.ResponseWriter, r *http.Request) {
	var req validation.VendorRequest
	if !decode(w, r, &req) {
		return
	}

	outcome, err := s.cfg.Workflow.RequestVendor(r.Context(), req.User, req.Vendor, req.Project)
	if err != nil {
		s.fail(w, r, "vendor request", err)
		return
	}
	respondJSON(w, outcomeStatus(outcome), VendorRequestResponse{
		Outcome: outcome,
		Vendor:  req.Vendor,
		Project: req.Project,
	})
}

func (s *Server) handleActiveEngagement(w http.ResponseWriter, r *http.Request) {
	vendor := r.PathValue("name")
	if err := validation.ValidName(vendor); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := s.cfg.Workflow.Checker().HasActiveEngagement(r.Context(), vendor)
	if err != nil {
		s.fail(w, r, "engagement lookup", err)
		return
	}
	respondJSON(w, http.StatusOK, EngagementResponse{Vendor: vendor, Engaged: e != nil, Engagement: e})
}

func (s *Server) handleEngagementHistory(w http.ResponseWriter, r *http.Request) {
	vendor := r.PathValue("name")
	if err := validation.ValidName(vendor); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.History == nil {
		s.fail(w, r, "engagement history", store.ErrUnsupported)
		return
	}

	list, err := s.cfg.History.Engagements(r.Context(), vendor)
	if err != nil {
		s.fail(w, r, "engagement history", err)
		return
	}
	if list == nil {
		list = []model.Engagement{}
	}
	respondJSON(w, http.StatusOK, EngagementsResponse{Vendor: vendor, Engagements: list})
}
