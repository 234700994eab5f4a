package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-deconflict/pkg/api"
	"github.com/dd0wney/cluso-deconflict/pkg/config"
	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/graphql"
	"github.com/dd0wney/cluso-deconflict/pkg/health"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/pubsub"
	"github.com/dd0wney/cluso-deconflict/pkg/server"
)

const systemMetricsInterval = 15 * time.Second

func (a *app) serverCmd() *cobra.Command {
	var corsOrigins string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the HTTP and GraphQL API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			var origins []string
			if corsOrigins != "" {
				origins = strings.Split(corsOrigins, ",")
			}
			return a.serve(ctx, origins)
		},
	}
	cmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "comma-separated origins allowed to call the API from a browser")
	return cmd
}

func (a *app) serve(ctx context.Context, corsOrigins []string) error {
	logger := a.log.With(logging.Component("server"))

	be, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer a.closeStore(context.WithoutCancel(ctx), be)

	ps := pubsub.NewPubSub()
	defer ps.Shutdown()

	ring, sink, closeAudit, err := a.openAudit()
	if err != nil {
		return err
	}
	defer closeAudit()

	reporter, closeReporter, err := a.reporter(ps)
	if err != nil {
		return err
	}
	defer closeReporter()

	opts := a.serviceOptions(sink)
	projects := deconflict.NewProjectService(be.client, opts...)
	workflow := deconflict.NewWorkflow(be.client, reporter, opts...)

	schema, err := graphql.NewSchema(graphql.Resolvers{
		Projects: projects,
		Requests: workflow,
		Checker:  workflow.Checker(),
		History:  be.client,
	})
	if err != nil {
		return err
	}

	hc := health.NewHealthChecker()
	storeCheck := health.StoreCheck(a.cfg.Backend, be.client, a.cfg.Store.QueryTimeout)
	hc.RegisterCheck("store", storeCheck)
	hc.RegisterCheck("memory", health.MemoryCheck())
	hc.RegisterReadinessCheck("store", storeCheck)
	hc.RegisterLivenessCheck("process", health.SimpleCheck("process"))

	var integrity *integrityAudit
	if be.graph != nil {
		integrity = newIntegrityAudit(be.graph, a.metrics, a.log)
		hc.RegisterCheck("integrity", health.IntegrityCheck(integrity.Last))
	}

	srv := api.NewServer(api.Config{
		Projects:    projects,
		Workflow:    workflow,
		History:     be.client,
		Audit:       ring,
		PubSub:      ps,
		GraphQL:     graphql.NewHandler(schema, graphql.DefaultMaxDepth, a.log),
		Health:      hc,
		Metrics:     a.metrics,
		Logger:      a.log,
		CORSOrigins: corsOrigins,
		Version:     version,
	})

	gs := server.NewGracefulServer(a.cfg.Server.Listen, srv.Handler(), a.log)
	gs.SetShutdownTimeout(a.cfg.Server.ShutdownTimeout)
	gs.SetConfigReloadFunc(a.reloadLogLevel)
	gs.WatchReload(ctx)

	logger.Info("deconflict server starting",
		logging.Backend(a.cfg.Backend),
		logging.String("listen", a.cfg.Server.Listen),
		logging.String("version", version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.Run(gctx)
	})
	g.Go(func() error {
		a.refreshSystemMetrics(gctx, be)
		return nil
	})
	if integrity != nil && a.cfg.Server.IntegrityInterval > 0 {
		g.Go(func() error {
			runEvery(gctx, a.cfg.Server.IntegrityInterval, func() {
				integrity.Run()
			})
			return nil
		})
	}
	return g.Wait()
}

func (a *app) refreshSystemMetrics(ctx context.Context, be *backend) {
	runEvery(ctx, systemMetricsInterval, func() {
		a.metrics.UpdateSystemMetrics()
		if be.graph != nil {
			stats := be.graph.GetStatistics()
			a.metrics.UpdateGraphSize(stats.NodeCount, stats.EdgeCount)
		}
	})
}

// runEvery calls fn immediately and then on every tick until ctx is done
func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// reloadLogLevel re-reads the config on SIGHUP. Only the log level is applied
// to a running server; everything else needs a restart.
func (a *app) reloadLogLevel() error {
	path := a.configPath
	if path == "" {
		path = a.getenv("DECONFLICT_CONFIG")
	}
	cfg, err := config.Load(path, a.getenv)
	if err != nil {
		return err
	}
	a.log.SetLevel(cfg.LogLevel())
	return nil
}
