// Package graphql exposes projects, engagements and the vendor request
// workflow over a graphql-go schema.
package graphql

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Projects is the project side of the schema
type Projects interface {
	CreateProject(ctx context.Context, managingUser, projectName string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// Requests runs the vendor request workflow
type Requests interface {
	RequestVendor(ctx context.Context, requester, vendor, project string) (model.Outcome, error)
}

// Checker looks up a vendor's active engagement
type Checker interface {
	HasActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error)
}

// Resolvers groups the services the schema delegates to. History is optional;
// without it the engagements field reports store.ErrUnsupported.
type Resolvers struct {
	Projects Projects
	Requests Requests
	Checker  Checker
	History  store.Engagements
}

var projectType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Project",
	Fields: graphql.Fields{
		"id":   &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"name": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

var engagementType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Engagement",
	Fields: graphql.Fields{
		"project": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"vendor":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"type":    &graphql.Field{Type: graphql.String},
		"start": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				e := p.Source.(model.Engagement)
				if e.Start.IsZero() {
					return nil, nil
				}
				return e.Start.Format(model.DateLayout), nil
			},
		},
		"end": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				e := p.Source.(model.Engagement)
				if e.End == nil {
					return nil, nil
				}
				return e.End.Format(model.DateLayout), nil
			},
		},
		"active": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Boolean),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				e := p.Source.(model.Engagement)
				return e.Active(), nil
			},
		},
	},
})

var vendorRequestType = graphql.NewObject(graphql.ObjectConfig{
	Name: "VendorRequestResult",
	Fields: graphql.Fields{
		"outcome": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"vendor":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"project": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

func nonNullString(desc string) *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String), Description: desc}
}

// NewSchema builds the query and mutation types around r
func NewSchema(r Resolvers) (graphql.Schema, error) {
	if r.Projects == nil || r.Requests == nil || r.Checker == nil {
		return graphql.Schema{}, errors.New("graphql: projects, requests and checker resolvers are required")
	}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"projects": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(projectType))),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.Projects.ListProjects(p.Context)
				},
			},
			"activeEngagement": &graphql.Field{
				Type: engagementType,
				Args: graphql.FieldConfigArgument{"vendor": nonNullString("vendor name")},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					e, err := r.Checker.HasActiveEngagement(p.Context, p.Args["vendor"].(string))
					if err != nil || e == nil {
						return nil, err
					}
					return *e, nil
				},
			},
			"engagements": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(engagementType))),
				Args: graphql.FieldConfigArgument{"vendor": nonNullString("vendor name")},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if r.History == nil {
						return nil, store.ErrUnsupported
					}
					list, err := r.History.Engagements(p.Context, p.Args["vendor"].(string))
					if err != nil {
						return nil, err
					}
					if list == nil {
						list = []model.Engagement{}
					}
					return list, nil
				},
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createProject": &graphql.Field{
				Type: projectType,
				Args: graphql.FieldConfigArgument{
					"user": nonNullString("managing user"),
					"name": nonNullString("project name"),
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					project, err := r.Projects.CreateProject(p.Context, p.Args["user"].(string), p.Args["name"].(string))
					if err != nil {
						return nil, err
					}
					return *project, nil
				},
			},
			"requestVendor": &graphql.Field{
				Type: graphql.NewNonNull(vendorRequestType),
				Args: graphql.FieldConfigArgument{
					"user":    nonNullString("requesting user"),
					"vendor":  nonNullString("vendor name"),
					"project": nonNullString("project name"),
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					vendor, project := p.Args["vendor"].(string), p.Args["project"].(string)
					outcome, err := r.Requests.RequestVendor(p.Context, p.Args["user"].(string), vendor, project)
					if err != nil {
						return nil, err
					}
					return map[string]any{
						"outcome": outcome.String(),
						"vendor":  vendor,
						"project": project,
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}
