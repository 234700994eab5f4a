package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
	"github.com/dd0wney/cluso-deconflict/pkg/validation"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// outcomeStatus maps a workflow outcome onto an HTTP status
func outcomeStatus(o model.Outcome) int {
	switch o {
	case model.Assigned:
		return http.StatusCreated
	case model.ConflictNotified:
		return http.StatusConflict
	case model.Unauthorized:
		return http.StatusForbidden
	case model.InputInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorStatus maps a service error onto an HTTP status
func errorStatus(err error) int {
	switch {
	case errors.Is(err, deconflict.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, deconflict.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, deconflict.ErrConnectivity), store.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, deconflict.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, deconflict.ErrProjectNotCreated):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes a response that keeps internals out of 5xx bodies
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", logging.Path(r.URL.Path), logging.Error(err))
		message = fmt.Sprintf("%s failed", op)
		if status == http.StatusServiceUnavailable {
			message = "graph store unavailable"
		}
	}
	respondError(w, status, message)
}

// decode reads a JSON body into req and validates its tags
func decode(w http.ResponseWriter, r *http.Request, req any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validation.ValidateRequest(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
