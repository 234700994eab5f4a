package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-deconflict/pkg/deconflict"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/model"
	"github.com/dd0wney/cluso-deconflict/pkg/notify"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
	"github.com/dd0wney/cluso-deconflict/pkg/store/embedded"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	ctx := context.Background()

	client := embedded.New(storage.NewGraphStorage())
	t.Cleanup(func() { client.Close(ctx) })
	require.NoError(t, client.EnsureUser(ctx, model.User{Name: "alice"}))
	require.NoError(t, client.EnsureUser(ctx, model.User{Name: "bob"}))
	require.NoError(t, client.EnsureVendor(ctx, model.Vendor{Name: "Acme"}))

	opts := []deconflict.Option{
		deconflict.WithMetrics(metrics.NewRegistry()),
		deconflict.WithClock(func() time.Time { return time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC) }),
	}
	projects := deconflict.NewProjectService(client, opts...)
	workflow := deconflict.NewWorkflow(client, notify.NewLogReporter(logging.NewNopLogger()), opts...)

	schema, err := NewSchema(Resolvers{
		Projects: projects,
		Requests: workflow,
		Checker:  workflow.Checker(),
		History:  client,
	})
	require.NoError(t, err)
	return NewHandler(schema, 0, nil)
}

func post(t *testing.T, h http.Handler, query string, vars map[string]any) Response {
	t.Helper()
	body, err := json.Marshal(Request{Query: query, Variables: vars})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func field(t *testing.T, resp Response, path ...string) any {
	t.Helper()
	var cur any = resp.Data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		require.True(t, ok, "expected object at %q, got %T", key, cur)
		cur = m[key]
	}
	return cur
}

func TestCreateAndListProjects(t *testing.T) {
	h := newTestHandler(t)

	resp := post(t, h, `mutation($u: String!, $n: String!) { createProject(user: $u, name: $n) { id name } }`,
		map[string]any{"u": "alice", "n": "Alpha"})
	require.Empty(t, resp.Errors)
	assert.Equal(t, "Alpha", field(t, resp, "createProject", "name"))
	assert.NotEmpty(t, field(t, resp, "createProject", "id"))

	resp = post(t, h, `{ projects { name } }`, nil)
	require.Empty(t, resp.Errors)
	list := field(t, resp, "projects").([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Alpha", list[0].(map[string]any)["name"])
}

func TestRequestVendorFlow(t *testing.T) {
	h := newTestHandler(t)
	post(t, h, `mutation { createProject(user: "alice", name: "Alpha") { id } }`, nil)
	post(t, h, `mutation { createProject(user: "bob", name: "Beta") { id } }`, nil)

	resp := post(t, h, `mutation { requestVendor(user: "ALICE", vendor: "Acme", project: "Alpha") { outcome } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "assigned", field(t, resp, "requestVendor", "outcome"))

	resp = post(t, h, `mutation { requestVendor(user: "bob", vendor: "Acme", project: "Beta") { outcome vendor } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "conflict_notified", field(t, resp, "requestVendor", "outcome"))

	resp = post(t, h, `{ activeEngagement(vendor: "Acme") { project type start end active } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "Alpha", field(t, resp, "activeEngagement", "project"))
	assert.Equal(t, "prime", field(t, resp, "activeEngagement", "type"))
	assert.Equal(t, "2024-06-03", field(t, resp, "activeEngagement", "start"))
	assert.Nil(t, field(t, resp, "activeEngagement", "end"))
	assert.Equal(t, true, field(t, resp, "activeEngagement", "active"))

	resp = post(t, h, `{ engagements(vendor: "Acme") { project } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Len(t, field(t, resp, "engagements").([]any), 1)
}

func TestNoActiveEngagementIsNull(t *testing.T) {
	h := newTestHandler(t)
	resp := post(t, h, `{ activeEngagement(vendor: "Acme") { project } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Nil(t, field(t, resp, "activeEngagement"))
}

func TestResolverErrorsAreReported(t *testing.T) {
	h := newTestHandler(t)
	resp := post(t, h, `mutation { createProject(user: "nobody", name: "Ghost") { id } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "transaction aborted")
}

func TestDepthLimit(t *testing.T) {
	require.NoError(t, ValidateQueryDepth(`{ projects { id } }`, 1))
	err := ValidateQueryDepth(`{ a { b { c { d } } } }`, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query depth 3 exceeds maximum allowed depth 2")

	// fragments count toward depth and self-reference does not loop
	q := `query { a { ...F } } fragment F on T { b { c } }`
	assert.Error(t, ValidateQueryDepth(q, 1))
	assert.NoError(t, ValidateQueryDepth(q, 2))

	assert.Error(t, ValidateQueryDepth(`{ unclosed`, 5))
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewSchemaRequiresServices(t *testing.T) {
	_, err := NewSchema(Resolvers{})
	assert.Error(t, err)
}
