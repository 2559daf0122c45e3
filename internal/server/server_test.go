package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine engine.Engine
}

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	if cfg == nil {
		cfg = config.Default("site-nine")
	}
	e := engine.New(conn, cfg)
	_, err = e.SeedPersonas(ctx)
	require.NoError(t, err)
	return e
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	e := newTestEngine(t, nil)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, Engine: e}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func bearer(t *testing.T, subject string, perms ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, subject, perms)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestCreateAndGetTask(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":    "Ship feature",
		"role":     "Engineer",
		"priority": "HIGH",
	}, map[string]string{"X-Actor-Id": "alice"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	created := decode[domain.Task](t, data)
	assert.Equal(t, "ENG-H-0001", created.ID)
	assert.Equal(t, domain.TaskTodo, created.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "Ship feature", decode[domain.Task](t, data).Title)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?status=TODO", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decode[taskList](t, data)
	require.Len(t, list.Items, 1)

	events, err := srv.Engine.Repo.EventsAfter(context.Background(), 0, 100)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "task.created", last.Type)
	assert.Equal(t, "alice", last.ActorID)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/ENG-H-0099", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "x", "role": "Wizard"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "bad_request", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"id": "ENG-H-0001", "title": "x", "role": "Tester"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "id_mismatch", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "x", "role": "Engineer", "epic_id": "EPC-H-0001"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "missing_reference", decode[errorEnvelope](t, data).Error.Code)
}

func TestReviewGateOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Gate me", "role": "Engineer"}, nil)
	task := decode[domain.Task](t, data)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews", map[string]any{
		"type":    "code",
		"title":   "Check the gate",
		"task_id": task.ID,
		"block":   true,
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	review := decode[domain.Review](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/claim", nil, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "review_blocked", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/blocked-tasks", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[blockedList](t, data).Items, 1)

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v0/reviews/%d/approve", srv.URL, review.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.ReviewApproved, decode[domain.Review](t, data).Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/claim", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.TaskUnderway, decode[domain.Task](t, data).Status)
}

func TestActionRoutesAcceptEmptyBody(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/epics", map[string]any{"title": "Bodyless"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	epic := decode[domain.Epic](t, data)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Claim me", "role": "Engineer", "epic_id": epic.ID}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[domain.Task](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/claim", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	claimed := decode[domain.Task](t, data)
	assert.Equal(t, domain.TaskUnderway, claimed.Status)
	assert.Nil(t, claimed.CurrentMissionID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/epics/sync", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	synced := decode[epicList](t, data)
	require.Len(t, synced.Items, 1)
	assert.Equal(t, domain.EpicUnderway, synced.Items[0].Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reviews", map[string]any{"type": "general", "title": "Sign off"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	review := decode[domain.Review](t, data)
	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v0/reviews/%d/approve", srv.URL, review.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.ReviewApproved, decode[domain.Review](t, data).Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/epics/"+epic.ID+"/abort", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.EpicAborted, decode[domain.Epic](t, data).Status)
}

func TestADRsOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/adrs", map[string]any{"title": "Use chi for routing"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	adr := decode[domain.ADR](t, data)
	assert.Equal(t, "ADR-001", adr.ID)
	assert.Equal(t, domain.ADRProposed, adr.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Router", "role": "Engineer"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[domain.Task](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/adrs/ADR-001/links", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/adrs/ADR-001/links", map[string]any{"epic_id": "EPC-H-0009"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "missing_reference", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/adrs/ADR-001/links", map[string]any{"task_id": task.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, []string{task.ID}, decode[domain.ADR](t, data).TaskIDs)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/adrs", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[adrList](t, data).Items, 1)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/adrs/ADR-001", map[string]any{"status": "accepted"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.ADRAccepted, decode[domain.ADR](t, data).Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/adrs?status=ACCEPTED", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[adrList](t, data).Items, 1)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/adrs?status=MAYBE", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/adrs/ADR-001/links?task_id="+task.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[domain.ADR](t, data).TaskIDs)
}

func TestDoctorOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	client := srv.Client()

	_, err := srv.Engine.CreateEpic(context.Background(), engine.EpicCreateOptions{Title: "Drift"})
	require.NoError(t, err)
	_, err = srv.Engine.DB.Exec(`UPDATE epics SET status='UNDERWAY'`)
	require.NoError(t, err)

	worker := bearer(t, "worker")
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/doctor", nil, worker)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	report := decode[engine.DoctorReport](t, data)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, engine.CheckEpicStatus, report.Issues[0].Check)
	assert.False(t, report.Issues[0].Fixed)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/doctor/repair", nil, worker)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/doctor/repair", nil, bearer(t, "ops", PermRepair))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 1, decode[engine.DoctorReport](t, data).Fixed)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/doctor", nil, worker)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[engine.DoctorReport](t, data).Issues)
}

func TestMissionStartSuggestsPersona(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", map[string]any{"role": "Historian"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	m := decode[domain.Mission](t, data)
	assert.NotEmpty(t, m.PersonaName)
	assert.NotEmpty(t, m.Codename)

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v0/missions/%d/end", srv.URL, m.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.NotNil(t, decode[domain.Mission](t, data).EndTime)
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	for i := 0; i < 3; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": fmt.Sprintf("task %d", i), "role": "Tester"}, nil)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	first := decode[paginatedEvents](t, data)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.Greater(t, first.Items[0].ID, first.Items[1].ID)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+first.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	second := decode[paginatedEvents](t, data)
	require.NotEmpty(t, second.Items)
	for _, evt := range second.Items {
		assert.Less(t, evt.ID, first.Items[1].ID)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decode[errorEnvelope](t, data).Error.Code)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	worker := bearer(t, "worker")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/epics", map[string]any{"title": "Launch"}, worker)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	epic := decode[domain.Epic](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/epics/"+epic.ID+"/abort", map[string]any{"reason": "scope cut"}, worker)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/epics/"+epic.ID+"/abort", map[string]any{"reason": "scope cut"}, bearer(t, "director", PermEpicAbort))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.EpicAborted, decode[domain.Epic](t, data).Status)

	events, err := srv.Engine.Repo.EventsAfter(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "director", events[len(events)-1].ActorID)
}

type hookRecorder struct {
	mu       sync.Mutex
	events   []webhookEvent
	headers  []http.Header
	failNext bool
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failNext {
		h.failNext = false
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	var evt webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.events = append(h.events, evt)
	h.headers = append(h.headers, r.Header.Clone())
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookRecorder) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, evt := range h.events {
		out = append(out, evt.Type)
	}
	return out
}

func TestWebhookDispatcherForwardsMatchingEvents(t *testing.T) {
	rec := &hookRecorder{}
	hook := httptest.NewServer(rec)
	t.Cleanup(hook.Close)

	cfg := config.Default("site-nine")
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"task.*"}, Secret: "shh"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	d := NewWebhookDispatcher(e, nil)
	require.NotNil(t, d)
	require.NoError(t, d.Prime(ctx))

	_, err := e.CreateTask(ctx, engine.TaskCreateOptions{Title: "hooked", Role: domain.RoleEngineer})
	require.NoError(t, err)
	p, err := e.SuggestPersona(ctx, domain.RoleEngineer, nil)
	require.NoError(t, err)
	_, err = e.StartMission(ctx, p.Name, domain.RoleEngineer, "")
	require.NoError(t, err)

	rec.failNext = true
	d.DispatchOnce(ctx)
	assert.Equal(t, []string{"task.created"}, rec.types())

	d.DispatchOnce(ctx)
	assert.Equal(t, []string{"task.created"}, rec.types())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "ENG-M-0001", rec.events[0].EntityID)
	assert.Equal(t, "site-nine", rec.events[0].Project)
	assert.Equal(t, "shh", rec.headers[0].Get("X-S9-Secret"))
	assert.Equal(t, "task.created", rec.headers[0].Get("X-S9-Event"))
	assert.Equal(t, rec.events[0].UID, rec.headers[0].Get("X-S9-Delivery"))
}

func TestWebhookDispatcherDisabled(t *testing.T) {
	disabled := false
	cfg := config.Default("site-nine")
	cfg.Webhooks = []config.WebhookConfig{{URL: "http://127.0.0.1:1/hook", Enabled: &disabled}}
	e := newTestEngine(t, cfg)
	assert.Nil(t, NewWebhookDispatcher(e, nil))
	assert.NoError(t, (*WebhookDispatcher)(nil).Run(context.Background()))
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"review.*", "task.created", " "})
	assert.True(t, f.match("review.approved"))
	assert.True(t, f.match("task.created"))
	assert.False(t, f.match("task.status"))
	assert.False(t, f.match("reviewer"))
	assert.True(t, newEventFilter(nil).match("anything"))
}
