package s9sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal site-nine HTTP API client.
type Client struct {
	BaseURL string
	// BasePath is the API prefix, /v1 unless the server was configured otherwise.
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when the server runs without auth.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Status           string   `json:"status"`
	Priority         string   `json:"priority"`
	Role             string   `json:"role"`
	EpicID           *string  `json:"epic_id,omitempty"`
	CurrentMissionID *int64   `json:"current_mission_id,omitempty"`
	BlocksOnReviewID *int64   `json:"blocks_on_review_id,omitempty"`
	DependsOn        []string `json:"depends_on,omitempty"`
}

// Epic represents an epic with its progress counts.
type Epic struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	Priority       string `json:"priority"`
	SubtaskCount   int    `json:"subtask_count"`
	CompletedCount int    `json:"completed_count"`
}

type Review struct {
	ID     int64   `json:"id"`
	Type   string  `json:"type"`
	Status string  `json:"status"`
	Title  string  `json:"title"`
	TaskID *string `json:"task_id,omitempty"`
}

type Handoff struct {
	ID            int64  `json:"id"`
	TaskID        string `json:"task_id"`
	FromMissionID int64  `json:"from_mission_id"`
	ToRole        string `json:"to_role"`
	ToMissionID   *int64 `json:"to_mission_id,omitempty"`
	Status        string `json:"status"`
	Summary       string `json:"summary"`
}

// HandoffResult reports whether a handoff transition applied.
type HandoffResult struct {
	Handoff Handoff `json:"handoff"`
	Changed bool    `json:"changed"`
}

type Mission struct {
	ID          int64   `json:"id"`
	PersonaName string  `json:"persona_name"`
	Role        string  `json:"role"`
	Codename    string  `json:"codename"`
	Objective   string  `json:"objective,omitempty"`
	StartTime   string  `json:"start_time"`
	EndTime     *string `json:"end_time,omitempty"`
}

type Persona struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Mythology    string `json:"mythology"`
	MissionCount int    `json:"mission_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	UID        string `json:"uid"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the server's error code, such
// as review_blocked or not_found, when the body carried one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type CreateTaskInput struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Role        string   `json:"role,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	EpicID      string   `json:"epic_id,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks accepts the same filters as the API: status, role, priority,
// category, epic_id, mission_id, open.
func (c *Client) ListTasks(ctx context.Context, filters url.Values) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("tasks", filters), nil, &resp)
	return resp.Items, err
}

// ClaimTask claims a task, for missionID when it is positive.
func (c *Client) ClaimTask(ctx context.Context, id string, missionID int64) (Task, error) {
	var body any
	if missionID > 0 {
		body = map[string]any{"mission_id": missionID}
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/claim", body, &resp)
	return resp, err
}

func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) AddDependency(ctx context.Context, id, dependsOn string) error {
	return c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/dependencies", map[string]any{"depends_on": dependsOn}, nil)
}

func (c *Client) CreateEpic(ctx context.Context, title, priority string) (Epic, error) {
	var resp Epic
	err := c.do(ctx, http.MethodPost, "epics", map[string]any{"title": title, "priority": priority}, &resp)
	return resp, err
}

func (c *Client) GetEpic(ctx context.Context, id string) (Epic, error) {
	var resp Epic
	err := c.do(ctx, http.MethodGet, "epics/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) AbortEpic(ctx context.Context, id, reason string) (Epic, error) {
	var resp Epic
	err := c.do(ctx, http.MethodPost, "epics/"+url.PathEscape(id)+"/abort", map[string]any{"reason": reason}, &resp)
	return resp, err
}

// CreateReview requests a review; block gates taskID on it.
func (c *Client) CreateReview(ctx context.Context, reviewType, title, taskID string, block bool) (Review, error) {
	body := map[string]any{"type": reviewType, "title": title, "block": block}
	if taskID != "" {
		body["task_id"] = taskID
	}
	var resp Review
	err := c.do(ctx, http.MethodPost, "reviews", body, &resp)
	return resp, err
}

func (c *Client) ApproveReview(ctx context.Context, id int64, reviewer string) (Review, error) {
	var resp Review
	err := c.do(ctx, http.MethodPost, "reviews/"+strconv.FormatInt(id, 10)+"/approve", map[string]any{"reviewer": reviewer}, &resp)
	return resp, err
}

func (c *Client) RejectReview(ctx context.Context, id int64, reviewer, reason string) (Review, error) {
	var resp Review
	err := c.do(ctx, http.MethodPost, "reviews/"+strconv.FormatInt(id, 10)+"/reject", map[string]any{"reviewer": reviewer, "reason": reason}, &resp)
	return resp, err
}

type CreateHandoffInput struct {
	TaskID             string   `json:"task_id"`
	FromMissionID      int64    `json:"from_mission_id"`
	ToRole             string   `json:"to_role"`
	Summary            string   `json:"summary"`
	Files              []string `json:"files,omitempty"`
	AcceptanceCriteria string   `json:"acceptance_criteria,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

func (c *Client) CreateHandoff(ctx context.Context, in CreateHandoffInput) (Handoff, error) {
	var resp Handoff
	err := c.do(ctx, http.MethodPost, "handoffs", in, &resp)
	return resp, err
}

func (c *Client) AcceptHandoff(ctx context.Context, id, missionID int64) (HandoffResult, error) {
	var resp HandoffResult
	err := c.do(ctx, http.MethodPost, "handoffs/"+strconv.FormatInt(id, 10)+"/accept", map[string]any{"mission_id": missionID}, &resp)
	return resp, err
}

func (c *Client) CompleteHandoff(ctx context.Context, id int64) (HandoffResult, error) {
	var resp HandoffResult
	err := c.do(ctx, http.MethodPost, "handoffs/"+strconv.FormatInt(id, 10)+"/complete", nil, &resp)
	return resp, err
}

// StartMission starts a mission; the server picks a persona when persona is empty.
func (c *Client) StartMission(ctx context.Context, role, persona, objective string) (Mission, error) {
	body := map[string]any{"role": role}
	if persona != "" {
		body["persona"] = persona
	}
	if objective != "" {
		body["objective"] = objective
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", body, &resp)
	return resp, err
}

func (c *Client) EndMission(ctx context.Context, id int64) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions/"+strconv.FormatInt(id, 10)+"/end", nil, &resp)
	return resp, err
}

func (c *Client) SuggestPersona(ctx context.Context, role string) (Persona, error) {
	var resp Persona
	err := c.do(ctx, http.MethodGet, withQuery("persona-suggestion", url.Values{"role": {role}}), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
