package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/backup"
	"github.com/dd0wney/cluso-deconflict/pkg/config"
	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/notify"
	"github.com/dd0wney/cluso-deconflict/pkg/pubsub"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
	"github.com/dd0wney/cluso-deconflict/pkg/store/embedded"
	"github.com/dd0wney/cluso-deconflict/pkg/store/neo4jstore"
)

// app holds what every subcommand shares once flags and config are parsed
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	user       string
	configPath string

	cfg     *config.Config
	log     *logging.JSONLogger
	metrics *metrics.Registry

	// newObjectStore is replaced in tests
	newObjectStore func(ctx context.Context, cfg config.BackupConfig) (backup.ObjectStore, error)
}

func newRootCmd(stdout, stderr io.Writer, getenv func(string) string) *cobra.Command {
	return newApp(stdout, stderr, getenv).rootCmd()
}

func newApp(stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		getenv: getenv,
		newObjectStore: func(ctx context.Context, cfg config.BackupConfig) (backup.ObjectStore, error) {
			return backup.NewS3Client(ctx, cfg.Region, cfg.Endpoint)
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deconflict",
		Short:         "Track vendor engagements and keep projects from claiming the same vendor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.user, "user", "u", "", "name of the user making the request")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file (default $DECONFLICT_CONFIG)")

	root.AddCommand(
		a.addProjectCmd(),
		a.requestVendorCmd(),
		a.projectsCmd(),
		a.serverCmd(),
		a.seedCmd(),
		a.verifyCmd(),
		a.backupCmd(),
		a.restoreCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	path := a.configPath
	if path == "" {
		path = a.getenv("DECONFLICT_CONFIG")
	}
	cfg, err := config.Load(path, a.getenv)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.NewJSONLogger(a.stderr, cfg.LogLevel())
	a.metrics = metrics.NewRegistry()
	return nil
}

func (a *app) requireUser() error {
	if a.user == "" {
		return errors.New("--user is required")
	}
	return nil
}

// backend is an opened store. graph is nil unless the embedded backend is in use.
type backend struct {
	client *store.Instrumented
	graph  *storage.GraphStorage
}

func (b *backend) Close(ctx context.Context) error {
	return b.client.Close(ctx)
}

func (a *app) openStore(ctx context.Context) (*backend, error) {
	var (
		inner store.Client
		graph *storage.GraphStorage
	)

	switch a.cfg.Backend {
	case config.BackendEmbedded:
		c, err := embedded.Open(a.cfg.Embedded.SnapshotPath,
			embedded.WithPoolSize(a.cfg.Embedded.PoolSize),
			embedded.WithMetrics(a.metrics),
			embedded.WithLogger(a.log),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded graph: %w", err)
		}
		inner, graph = c, c.Graph()
	case config.BackendNeo4j:
		n := a.cfg.Neo4j
		c, err := neo4jstore.Connect(ctx, neo4jstore.Options{
			URI:            n.URI,
			Username:       n.Username,
			Password:       n.Password,
			Database:       n.Database,
			FetchSize:      n.FetchSize,
			MaxConnections: n.MaxConnections,
			Logger:         a.log,
		})
		if err != nil {
			return nil, fmt.Errorf("could not reach database: %w", err)
		}
		inner = c
	default:
		return nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}

	client := store.Instrument(inner, store.InstrumentOptions{
		Backend: a.cfg.Backend,
		Timeout: a.cfg.Store.QueryTimeout,
		Metrics: a.metrics,
		Logger:  a.log,
	})
	return &backend{client: client, graph: graph}, nil
}

// embeddedGraph opens the store and fails unless it is the embedded backend
func (a *app) embeddedGraph(ctx context.Context, command string) (*backend, error) {
	if a.cfg.Backend != config.BackendEmbedded {
		return nil, fmt.Errorf("%s works on the embedded backend only (backend is %q)", command, a.cfg.Backend)
	}
	return a.openStore(ctx)
}

// openAudit returns the in-memory trail and the sink services write to. When
// a journal is configured the sink writes to both.
func (a *app) openAudit() (*audit.AuditLogger, audit.Logger, func() error, error) {
	ring := audit.NewAuditLogger(a.cfg.Audit.BufferSize)
	if a.cfg.Audit.JournalPath == "" {
		return ring, ring, func() error { return nil }, nil
	}
	journal, err := audit.OpenJournal(a.cfg.Audit.JournalPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return ring, audit.Tee{ring, journal}, journal.Close, nil
}

// reporter builds the conflict reporters the config enables. ps may be nil.
func (a *app) reporter(ps *pubsub.PubSub) (notify.Reporter, func() error, error) {
	var (
		reporters []notify.Reporter
		closeFn   = func() error { return nil }
	)
	if a.cfg.Notify.Log {
		reporters = append(reporters, notify.NewLogReporter(a.log))
	}
	if ps != nil {
		reporters = append(reporters, notify.NewPubSubReporter(ps))
	}
	if a.cfg.Notify.NNGAddr != "" {
		nng, err := notify.NewNNGReporter(a.cfg.Notify.NNGAddr)
		if err != nil {
			return nil, nil, err
		}
		reporters = append(reporters, nng)
		closeFn = nng.Close
	}
	return notify.NewMultiReporter(a.metrics, reporters...), closeFn, nil
}

func (a *app) serviceOptions(sink audit.Logger) []deconflict.Option {
	return []deconflict.Option{
		deconflict.WithLogger(a.log),
		deconflict.WithMetrics(a.metrics),
		deconflict.WithAudit(sink),
	}
}

func (a *app) closeStore(ctx context.Context, be *backend) {
	if err := be.Close(ctx); err != nil {
		a.log.Warn("failed to close store", logging.Error(err))
	}
}
