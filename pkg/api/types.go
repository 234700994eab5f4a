package api

import (
	"github.com/dd0wney/cluso-deconflict/pkg/model"
)

// BannerResponse is served at GET /
type BannerResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ProjectsResponse keeps the {"projects": [...]} envelope of the listing
type ProjectsResponse struct {
	Projects []model.Project `json:"projects"`
}

// VendorRequestResponse reports the workflow outcome
type VendorRequestResponse struct {
	Outcome model.Outcome `json:"outcome"`
	Vendor  string        `json:"vendor"`
	Project string        `json:"project"`
}

// EngagementResponse is served at GET /vendors/{name}/engagement.
// Engagement is null when the vendor is free.
type EngagementResponse struct {
	Vendor     string            `json:"vendor"`
	Engaged    bool              `json:"engaged"`
	Engagement *model.Engagement `json:"engagement"`
}

// EngagementsResponse lists every engagement of a vendor, closed ones included
type EngagementsResponse struct {
	Vendor      string             `json:"vendor"`
	Engagements []model.Engagement `json:"engagements"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
