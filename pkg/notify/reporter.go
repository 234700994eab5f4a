// Package notify delivers conflict reports to the operator channel.
package notify

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/pubsub"
)

// Reporter delivers a conflict report. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(ctx context.Context, report model.ConflictReport) error
	Name() string
}

// LogReporter writes each report as a structured WARN line.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter creates a reporter that logs to logger, or to the default
// logger when nil.
func NewLogReporter(logger logging.Logger) *LogReporter {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &LogReporter{logger: logger.With(logging.Component("notify"))}
}

func (r *LogReporter) Name() string { return "log" }

func (r *LogReporter) Report(ctx context.Context, report model.ConflictReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.logger.Warn("vendor conflict",
		logging.Vendor(report.Vendor),
		logging.Project(report.Project),
		logging.User(report.ManagingUser),
		logging.String("type", report.Type),
	)
	return nil
}

// PubSubReporter publishes reports on pubsub.TopicVendorConflict. Having no
// subscribers is not an error.
type PubSubReporter struct {
	ps *pubsub.PubSub
}

func NewPubSubReporter(ps *pubsub.PubSub) *PubSubReporter {
	return &PubSubReporter{ps: ps}
}

func (r *PubSubReporter) Name() string { return "pubsub" }

func (r *PubSubReporter) Report(ctx context.Context, report model.ConflictReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.ps.Publish(pubsub.TopicVendorConflict, report)
	return nil
}

// MultiReporter sends every report to all reporters and joins their errors.
type MultiReporter struct {
	reporters []Reporter
	metrics   *metrics.Registry
}

// NewMultiReporter fans out to reporters. reg may be nil.
func NewMultiReporter(reg *metrics.Registry, reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters, metrics: reg}
}

func (m *MultiReporter) Name() string { return "multi" }

func (m *MultiReporter) Report(ctx context.Context, report model.ConflictReport) error {
	var errs []error
	for _, r := range m.reporters {
		err := r.Report(ctx, report)
		if m.metrics != nil {
			m.metrics.RecordNotification(r.Name(), err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of reporters
func (m *MultiReporter) Len() int {
	return len(m.reporters)
}
