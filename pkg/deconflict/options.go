// Package deconflict implements project creation and the vendor request
// workflow on top of a store.Client.
package deconflict

import (
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
)

// Option configures the services in this package
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics *metrics.Registry
	audit   audit.Logger
	now     func() time.Time
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNopLogger()
	}
	if o.metrics == nil {
		o.metrics = metrics.DefaultRegistry()
	}
	return o
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithAudit records every operation outcome to l
func WithAudit(l audit.Logger) Option {
	return func(o *options) { o.audit = l }
}

// WithClock overrides the source of engagement start dates
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func (o options) record(event *audit.Event) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Log(event); err != nil {
		o.logger.Warn("audit log failed", logging.Error(err), logging.String("event", event.ID))
	}
}
