package deconflict

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/notify"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Notifier tells the manager of the project holding a vendor that someone
// else asked for it.
type Notifier struct {
	client   store.Client
	reporter notify.Reporter
	options
}

func NewNotifier(client store.Client, reporter notify.Reporter, opts ...Option) *Notifier {
	o := newOptions(opts)
	o.logger = o.logger.With(logging.Component("notifier"))
	return &Notifier{client: client, reporter: reporter, options: o}
}

// NotifyManagingUser reports the vendor's active engagement and its owner.
// Finding no owner is a consistency violation: callers only get here after
// observing an active engagement.
func (n *Notifier) NotifyManagingUser(ctx context.Context, vendor string) (err error) {
	const op = "NotifyManagingUser"

	event := audit.NewEvent("", audit.ActionNotify, audit.ResourceVendor, vendor)
	defer func() { n.record(event.WithError(err)) }()

	report, err := n.client.ConflictOwner(ctx, vendor)
	if err != nil {
		return storeError(op, err)
	}
	if report == nil {
		n.logger.Error("active engagement has no owner", logging.Vendor(vendor))
		return opError(op, ErrConsistencyViolation,
			fmt.Errorf("no active engagement with a managing user for vendor %q", vendor))
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = n.now().UTC().Truncate(time.Second)
	}

	event.Username = report.ManagingUser
	event.With("project", report.Project)

	err = n.reporter.Report(ctx, *report)
	n.metrics.RecordNotification(n.reporter.Name(), err)
	if err != nil {
		return fmt.Errorf("%s: report via %s: %w", op, n.reporter.Name(), err)
	}
	return nil
}
