package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/pubsub"
)

// streamKeepAlive is how often an idle conflict stream sends a comment line
var streamKeepAlive = 15 * time.Second

// handleConflictStream relays conflict reports as server-sent events until
// the client disconnects or the pubsub shuts down.
func (s *Server) handleConflictStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := s.cfg.PubSub.Subscribe(r.Context(), pubsub.TopicVendorConflict)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "conflict stream unavailable")
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("dropping unencodable conflict report", logging.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: conflict\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
