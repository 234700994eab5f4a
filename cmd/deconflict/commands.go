package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

func (a *app) addProjectCmd() *cobra.Command {
	var projectName string
	cmd := &cobra.Command{
		Use:   "add-project",
		Short: "Create a project managed by --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireUser(); err != nil {
				return err
			}
			if projectName == "" {
				return &exitError{code: exitInvalid, msg: "no project name provided"}
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

			svc := deconflict.NewProjectService(be.client, a.serviceOptions(sink)...)
			project, err := svc.CreateProject(ctx, a.user, projectName)
			if err != nil {
				if errors.Is(err, deconflict.ErrProjectNotCreated) {
					return fmt.Errorf("failed to create project: user %q not found", a.user)
				}
				return fmt.Errorf("could not create project: %w", err)
			}
			fmt.Fprintf(a.stdout, "Successfully created new project %s with id %s\n", project.Name, project.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectName, "project-name", "p", "", "name of the new project")
	return cmd
}

// Exit statuses of request-vendor when the request was refused
const (
	exitConflict     = 2
	exitUnauthorized = 3
	exitInvalid      = 4
)

func (a *app) requestVendorCmd() *cobra.Command {
	var vendorName, projectName string
	cmd := &cobra.Command{
		Use:   "request-vendor",
		Short: "Engage a vendor for a project managed by --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireUser(); err != nil {
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

			reporter, closeReporter, err := a.reporter(nil)
			if err != nil {
				return err
			}
			defer closeReporter()

			wf := deconflict.NewWorkflow(be.client, reporter, a.serviceOptions(sink)...)
			outcome, err := wf.RequestVendor(ctx, a.user, vendorName, projectName)
			if err != nil {
				return fmt.Errorf("unable to request vendor: %w", err)
			}
			return a.reportOutcome(outcome, vendorName, projectName)
		},
	}
	cmd.Flags().StringVarP(&vendorName, "vendor-name", "v", "", "vendor to engage")
	cmd.Flags().StringVarP(&projectName, "project-name", "p", "", "project that needs the vendor")
	return cmd
}

func (a *app) reportOutcome(outcome model.Outcome, vendor, project string) error {
	switch outcome {
	case model.Assigned:
		fmt.Fprintf(a.stdout, "Added vendor %s to project %s\n", vendor, project)
		return nil
	case model.ConflictNotified:
		return &exitError{code: exitConflict, msg: fmt.Sprintf(
			"vendor %s is already engaged by another project; its managing user has been notified", vendor)}
	case model.Unauthorized:
		return &exitError{code: exitUnauthorized, msg: fmt.Sprintf(
			"user %s is not the managing user of project %s; cannot request vendor", a.user, project)}
	case model.InputInvalid:
		if vendor == "" {
			return &exitError{code: exitInvalid, msg: "no vendor name provided"}
		}
		return &exitError{code: exitInvalid, msg: "no project name provided"}
	default:
		return fmt.Errorf("unexpected outcome %s", outcome)
	}
}

func (a *app) projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List every project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, be)

			projects, err := deconflict.NewProjectService(be.client, a.serviceOptions(nil)...).ListProjects(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%s\n", p.ID, p.Name)
			}
			return tw.Flush()
		},
	}
}
