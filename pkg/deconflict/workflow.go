package deconflict

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/notify"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Workflow handles vendor requests. Requests for the same vendor are
// serialized in-process and the store rejects a second active engagement, so
// a vendor never ends up with two.
type Workflow struct {
	client   store.Client
	checker  *ConflictChecker
	authz    *Authorizer
	notifier *Notifier
	locks    vendorLocks
	options
}

func NewWorkflow(client store.Client, reporter notify.Reporter, opts ...Option) *Workflow {
	o := newOptions(opts)
	o.logger = o.logger.With(logging.Component("workflow"))
	return &Workflow{
		client:   client,
		checker:  NewConflictChecker(client),
		authz:    NewAuthorizer(client),
		notifier: NewNotifier(client, reporter, opts...),
		options:  o,
	}
}

// Checker returns the conflict checker the workflow uses
func (w *Workflow) Checker() *ConflictChecker {
	return w.checker
}

// RequestVendor engages vendor for project on behalf of requester, or reports
// the conflict to the manager of the project already holding the vendor.
// Errors come with OutcomeUnknown.
func (w *Workflow) RequestVendor(ctx context.Context, requester, vendor, project string) (outcome model.Outcome, err error) {
	event := audit.NewEvent(requester, audit.ActionRequestVendor, audit.ResourceVendor, vendor).
		With("project", project)
	logger := w.logger.With(logging.User(requester), logging.Vendor(vendor), logging.Project(project))
	defer func() {
		event.Outcome = outcome.String()
		w.record(event.WithError(err))
		if err != nil {
			w.metrics.RecordVendorRequest("error")
			logger.Warn("vendor request failed", logging.Error(err))
			return
		}
		w.metrics.RecordVendorRequest(outcome.String())
		logger.Info("vendor request handled", logging.OutcomeField(outcome))
	}()

	if vendor == "" || project == "" {
		return model.InputInvalid, nil
	}

	waitStart := time.Now()
	unlock := w.locks.lock(vendor)
	defer unlock()
	w.metrics.VendorLockWaitDuration.Observe(time.Since(waitStart).Seconds())

	active, err := w.checker.HasActiveEngagement(ctx, vendor)
	if err != nil {
		return model.OutcomeUnknown, err
	}
	if active != nil {
		event.With("held_by", active.Project)
		return w.conflict(ctx, vendor)
	}

	ok, err := w.authz.IsManagingUser(ctx, project, requester)
	if err != nil {
		return model.OutcomeUnknown, err
	}
	if !ok {
		return model.Unauthorized, nil
	}

	err = w.client.CreateEngagement(ctx, model.Engagement{
		Project: project,
		Vendor:  vendor,
		Type:    model.EngagementTypePrime,
		Start:   model.Date(w.now()),
	})
	switch {
	case err == nil:
		return model.Assigned, nil
	case errors.Is(err, store.ErrVendorEngaged):
		// Another process engaged the vendor between our check and the write.
		w.metrics.StoreGuardConflicts.Inc()
		logger.Warn("engagement rejected by store guard")
		return w.conflict(ctx, vendor)
	default:
		return model.OutcomeUnknown, storeError("RequestVendor", err)
	}
}

// conflict runs the notification as its own goroutine and waits for it.
func (w *Workflow) conflict(ctx context.Context, vendor string) (model.Outcome, error) {
	done := make(chan error, 1)
	go func() {
		done <- w.notifier.NotifyManagingUser(ctx, vendor)
	}()
	if err := <-done; err != nil {
		return model.OutcomeUnknown, err
	}
	return model.ConflictNotified, nil
}
