package deconflict

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

func TestWorkflowProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	ctx := context.Background()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("a free vendor can be assigned by the managing user", prop.ForAll(
		func(vendor, user string) bool {
			f := newFixture(t)
			f.users(t, user)
			f.vendors(t, vendor)
			f.project(t, user, "Project")

			active, err := f.workflow.Checker().HasActiveEngagement(ctx, vendor)
			if err != nil || active != nil {
				return false
			}
			outcome, err := f.workflow.RequestVendor(ctx, user, vendor, "Project")
			return err == nil && outcome == model.Assigned
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("an engaged vendor is never engaged twice", prop.ForAll(
		func(vendor, requester string) bool {
			f := newFixture(t)
			f.users(t, "owner", requester)
			f.vendors(t, vendor)
			f.project(t, "owner", "Held")
			f.project(t, requester, "Other")
			if outcome, err := f.workflow.RequestVendor(ctx, "owner", vendor, "Held"); err != nil || outcome != model.Assigned {
				return false
			}
			writesBefore := f.client.writes.Load()

			outcome, err := f.workflow.RequestVendor(ctx, requester, vendor, "Other")
			if err != nil || outcome != model.ConflictNotified {
				return false
			}
			return f.client.writes.Load() == writesBefore &&
				activeCount(f.engagements(t, vendor)) == 1
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("authorization ignores case and nothing else", prop.ForAll(
		func(user string) bool {
			f := newFixture(t)
			f.users(t, user)
			f.vendors(t, "Acme", "Globex")
			f.project(t, user, "Alpha")

			denied, err := f.workflow.RequestVendor(ctx, user+"x", "Globex", "Alpha")
			if err != nil || denied != model.Unauthorized {
				return false
			}
			granted, err := f.workflow.RequestVendor(ctx, strings.ToUpper(user), "Acme", "Alpha")
			return err == nil && granted == model.Assigned
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
