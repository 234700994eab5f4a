package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
)

// handleAuditEvents exports buffered audit events. Query parameters: user,
// action, resource, outcome, status, since and until (RFC 3339), limit
// (keeps the newest n) and format (json, jsonl, csv).
func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format, err := audit.ParseFormat(q.Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := &audit.Filter{
		Username:     q.Get("user"),
		Action:       audit.Action(q.Get("action")),
		ResourceType: audit.ResourceType(q.Get("resource")),
		Outcome:      q.Get("outcome"),
		Status:       audit.Status(q.Get("status")),
	}
	bounds := []struct {
		key string
		dst **time.Time
	}{{"since", &filter.StartTime}, {"until", &filter.EndTime}}
	for _, b := range bounds {
		raw := q.Get(b.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: expected RFC 3339 timestamp", b.key))
			return
		}
		*b.dst = &t
	}

	events := s.cfg.Audit.GetEvents(filter)
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit: expected a non-negative integer")
			return
		}
		if n < len(events) {
			events = events[len(events)-n:]
		}
	}

	w.Header().Set("Content-Type", format.ContentType())
	if err := audit.Export(w, events, format); err != nil {
		s.logger.Warn("audit export interrupted", logging.Error(err))
	}
}
