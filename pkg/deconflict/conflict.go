package deconflict

import (
	"context"

	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// ConflictChecker answers whether a vendor is already engaged. It never writes.
type ConflictChecker struct {
	client store.Client
}

func NewConflictChecker(client store.Client) *ConflictChecker {
	return &ConflictChecker{client: client}
}

// HasActiveEngagement returns the vendor's active engagement, or nil when the
// vendor is free or unknown. Closed engagements never count.
func (c *ConflictChecker) HasActiveEngagement(ctx context.Context, vendor string) (*model.Engagement, error) {
	e, err := c.client.ActiveEngagement(ctx, vendor)
	if err != nil {
		return nil, storeError("HasActiveEngagement", err)
	}
	if !e.Active() {
		return nil, nil
	}
	return e, nil
}
