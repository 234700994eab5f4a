package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-deconflict/pkg/audit"
	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// fixture is the YAML layout accepted by seed
type fixture struct {
	Users       []string            `yaml:"users"`
	Vendors     []string            `yaml:"vendors"`
	Projects    []fixtureProject    `yaml:"projects"`
	Engagements []fixtureEngagement `yaml:"engagements"`
}

type fixtureProject struct {
	Name    string `yaml:"name"`
	Manager string `yaml:"manager"`
}

type fixtureEngagement struct {
	Project string `yaml:"project"`
	Vendor  string `yaml:"vendor"`
	Type    string `yaml:"type"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"` // empty for an active engagement
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return &f, nil
}

func (e fixtureEngagement) engagement() (model.Engagement, error) {
	out := model.Engagement{Project: e.Project, Vendor: e.Vendor, Type: e.Type}
	if out.Type == "" {
		out.Type = model.EngagementTypePrime
	}
	start, err := time.Parse(model.DateLayout, e.Start)
	if err != nil {
		return out, fmt.Errorf("engagement %s/%s: bad start date: %w", e.Project, e.Vendor, err)
	}
	out.Start = start
	if e.End != "" {
		end, err := time.Parse(model.DateLayout, e.End)
		if err != nil {
			return out, fmt.Errorf("engagement %s/%s: bad end date: %w", e.Project, e.Vendor, err)
		}
		out.End = &end
	}
	return out, nil
}

type seedCounts struct {
	users, vendors, projects, engagements int
}

// seed loads f through the seeder. Projects that already exist by name are
// skipped so a fixture can be applied twice.
func seed(ctx context.Context, client store.Client, seeder store.Seeder, f *fixture, opts []deconflict.Option) (seedCounts, error) {
	var n seedCounts

	for _, name := range f.Users {
		if err := seeder.EnsureUser(ctx, model.User{Name: name}); err != nil {
			return n, fmt.Errorf("user %s: %w", name, err)
		}
		n.users++
	}
	for _, name := range f.Vendors {
		if err := seeder.EnsureVendor(ctx, model.Vendor{Name: name}); err != nil {
			return n, fmt.Errorf("vendor %s: %w", name, err)
		}
		n.vendors++
	}

	projects := deconflict.NewProjectService(client, opts...)
	existing, err := projects.ListProjects(ctx)
	if err != nil {
		return n, err
	}
	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[p.Name] = true
	}
	for _, p := range f.Projects {
		if known[p.Name] {
			continue
		}
		if _, err := projects.CreateProject(ctx, p.Manager, p.Name); err != nil {
			return n, fmt.Errorf("project %s: %w", p.Name, err)
		}
		known[p.Name] = true
		n.projects++
	}

	for _, fe := range f.Engagements {
		e, err := fe.engagement()
		if err != nil {
			return n, err
		}
		if err := seeder.RecordEngagement(ctx, e); err != nil {
			return n, fmt.Errorf("engagement %s/%s: %w", e.Project, e.Vendor, err)
		}
		n.engagements++
	}
	return n, nil
}

func (a *app) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, vendors, projects and engagements from a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			f, err := loadFixture(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			be, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, be)

			_, sink, closeAudit, err := a.openAudit()
			if err != nil {
				return err
			}
			defer closeAudit()

			n, err := seed(ctx, be.client, be.client, f, a.serviceOptions(sink))

			event := audit.NewEvent(a.user, audit.ActionSeed, audit.ResourceProject, file).
				With("users", n.users).
				With("vendors", n.vendors).
				With("projects", n.projects).
				With("engagements", n.engagements).
				WithError(err)
			if logErr := sink.Log(event); logErr != nil {
				a.log.Warn("audit log failed", logging.Error(logErr))
			}

			if err != nil {
				if errors.Is(err, store.ErrUnsupported) {
					return fmt.Errorf("backend %s cannot load fixtures: %w", a.cfg.Backend, err)
				}
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Fprintf(a.stdout, "Seeded %d users, %d vendors, %d projects, %d engagements\n",
				n.users, n.vendors, n.projects, n.engagements)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture file")
	return cmd
}
