package deconflict

import (
	"context"

	"github.com/dd0wney/cluso-deconflict/pkg/store"
)

// Authorizer decides whether a caller manages a project. Identity is the
// caller-supplied name; nothing is verified.
type Authorizer struct {
	client store.Client
}

func NewAuthorizer(client store.Client) *Authorizer {
	return &Authorizer{client: client}
}

// IsManagingUser compares candidate against the project's managing user,
// ignoring ASCII case. A project without a manager authorizes nobody.
func (a *Authorizer) IsManagingUser(ctx context.Context, project, candidate string) (bool, error) {
	manager, err := a.client.ManagingUser(ctx, project)
	if err != nil {
		return false, storeError("IsManagingUser", err)
	}
	if manager == nil {
		return false, nil
	}
	return equalFoldASCII(manager.Name, candidate), nil
}

// equalFoldASCII folds only A-Z. Unicode case mappings such as the Kelvin
// sign folding to 'k' do not make two names equal.
func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		x, y := a[i], b[i]
		if 'A' <= x && x <= 'Z' {
			x += 'a' - 'A'
		}
		if 'A' <= y && y <= 'Z' {
			y += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}
