package s9sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/migrate"
	"github.com/dusktreader/site-nine/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	e := engine.New(conn, config.Default("sdk"))
	_, err = e.SeedPersonas(ctx)
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.ActorID = "sdk-test"
	return c
}

func TestTaskWorkflowThroughClient(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	m, err := c.StartMission(ctx, "Engineer", "", "ship it")
	require.NoError(t, err)
	assert.NotEmpty(t, m.Codename)

	task, err := c.CreateTask(ctx, CreateTaskInput{Title: "Wire client", Role: "Engineer", Priority: "HIGH"})
	require.NoError(t, err)
	assert.Equal(t, "ENG-H-0001", task.ID)

	rv, err := c.CreateReview(ctx, "code", "check client", task.ID, true)
	require.NoError(t, err)

	_, err = c.ClaimTask(ctx, task.ID, m.ID)
	require.Error(t, err)
	assert.True(t, IsCode(err, "review_blocked"), err.Error())

	rv, err = c.ApproveReview(ctx, rv.ID, "lead")
	require.NoError(t, err)
	assert.Equal(t, "approved", rv.Status)

	task, err = c.ClaimTask(ctx, task.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "UNDERWAY", task.Status)
	require.NotNil(t, task.CurrentMissionID)
	assert.Equal(t, m.ID, *task.CurrentMissionID)

	open, err := c.ListTasks(ctx, url.Values{"status": {"UNDERWAY"}})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	events, err := c.Events(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "sdk-test", events[0].ActorID)
}

func TestHandoffThroughClient(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	from, err := c.StartMission(ctx, "Engineer", "", "")
	require.NoError(t, err)
	to, err := c.StartMission(ctx, "Tester", "", "")
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, CreateTaskInput{Title: "Test it", Role: "Tester"})
	require.NoError(t, err)

	h, err := c.CreateHandoff(ctx, CreateHandoffInput{TaskID: task.ID, FromMissionID: from.ID, ToRole: "Tester", Summary: "ready for tests"})
	require.NoError(t, err)
	assert.Equal(t, "pending", h.Status)

	res, err := c.CompleteHandoff(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = c.AcceptHandoff(ctx, h.ID, to.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "accepted", res.Handoff.Status)

	res, err = c.CompleteHandoff(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "completed", res.Handoff.Status)
}

func TestAPIErrorCarriesCode(t *testing.T) {
	c := newClient(t)
	_, err := c.GetTask(context.Background(), "ENG-H-0042")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.False(t, IsCode(err, "busy"))
}

func TestClaimWithoutMission(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	task, err := c.CreateTask(ctx, CreateTaskInput{Title: "Solo work", Role: "Operator"})
	require.NoError(t, err)
	task, err = c.ClaimTask(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "UNDERWAY", task.Status)
	assert.Nil(t, task.CurrentMissionID)
}
