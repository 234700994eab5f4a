// Package api serves the deconfliction services over HTTP.
package api

import (
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dd0wney/cluso-deconflict/pkg/api/middleware"
	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/health"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/pubsub"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// DefaultMaxBodyBytes caps JSON request bodies
const DefaultMaxBodyBytes = 1 << 20

// Config wires the server to its services. Projects and Workflow are
// required; every other dependency switches off its routes when nil.
type Config struct {
	Projects *deconflict.ProjectService
	Workflow *deconflict.Workflow
	History  store.Engagements

	Audit   *audit.AuditLogger
	PubSub  *pubsub.PubSub
	GraphQL http.Handler
	Health  *health.HealthChecker
	Metrics *metrics.Registry
	Logger  logging.Logger

	CORSOrigins  []string
	MaxBodyBytes int64
	Version      string
}

// Server is the HTTP front of the deconfliction engine
type Server struct {
	cfg       Config
	logger    logging.Logger
	startTime time.Time

	// concurrent GET /projects share one store read
	listGroup singleflight.Group
}

// NewServer creates a server. It panics when Projects or Workflow is missing.
func NewServer(cfg Config) *Server {
	if cfg.Projects == nil || cfg.Workflow == nil {
		panic("api: Projects and Workflow are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		cfg:       cfg,
		logger:    cfg.Logger.With(logging.Component("api")),
		startTime: time.Now(),
	}
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleBanner)
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("POST /vendor-requests", s.handleVendorRequest)
	mux.HandleFunc("GET /vendors/{name}/engagement", s.handleActiveEngagement)
	mux.HandleFunc("GET /vendors/{name}/engagements", s.handleEngagementHistory)

	if s.cfg.Audit != nil {
		mux.HandleFunc("GET /audit/events", s.handleAuditEvents)
	}
	if s.cfg.PubSub != nil {
		mux.HandleFunc("GET /conflicts/stream", s.handleConflictStream)
	}
	if s.cfg.GraphQL != nil {
		mux.Handle("/graphql", s.cfg.GraphQL)
	}
	if s.cfg.Health != nil {
		mux.HandleFunc("GET /health", s.cfg.Health.HTTPHandler())
		mux.HandleFunc("GET /health/ready", s.cfg.Health.ReadinessHandler())
		mux.HandleFunc("GET /health/live", s.cfg.Health.LivenessHandler())
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	}

	// Metrics sits next to the mux so it sees the matched pattern.
	return middleware.Chain(mux,
		middleware.PanicRecovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.CORS(s.cfg.CORSOrigins),
		middleware.BodySizeLimit(s.cfg.MaxBodyBytes),
		middleware.Metrics(s.cfg.Metrics),
	)
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, BannerResponse{
		Service: "vendor-deconfliction",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}
