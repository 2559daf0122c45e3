package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/ids"
	"github.com/dusktreader/site-nine/internal/repo"
)

// TaskCreateOptions are parameters for creating a task. When ID is empty the
// next global sequence number is allocated.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Role        domain.Role
	Priority    domain.Priority
	Category    domain.Category
	Description string
	EpicID      string
	DependsOn   []string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Task{}, invalidf("title", "title is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, invalid("priority", &domain.EnumError{Kind: "priority", Value: string(opts.Priority)})
	}
	if opts.Role != "" {
		r, err := domain.ParseRole(string(opts.Role))
		if err != nil {
			return domain.Task{}, invalid("role", err)
		}
		opts.Role = r
	}
	if opts.ID != "" {
		parsed, err := ids.ParseTaskID(opts.ID)
		if err != nil {
			return domain.Task{}, invalid("id", err)
		}
		if opts.Role == "" {
			opts.Role = parsed.Role
		}
		if parsed.Role != opts.Role {
			return domain.Task{}, invalid("id", &IDMismatchError{ID: opts.ID, Field: "role", Encoded: string(parsed.Role), Supplied: string(opts.Role)})
		}
		if parsed.Priority != opts.Priority {
			return domain.Task{}, invalid("id", &IDMismatchError{ID: opts.ID, Field: "priority", Encoded: string(parsed.Priority), Supplied: string(opts.Priority)})
		}
	}
	if !opts.Role.Valid() {
		return domain.Task{}, invalid("role", &domain.EnumError{Kind: "role", Value: string(opts.Role)})
	}
	var category *domain.Category
	if opts.Category != "" {
		c, err := domain.ParseCategory(string(opts.Category))
		if err != nil {
			return domain.Task{}, invalid("category", err)
		}
		category = &c
	}
	for _, dep := range opts.DependsOn {
		if dep == opts.ID && dep != "" {
			return domain.Task{}, invalidf("depends_on", "task cannot depend on itself")
		}
	}

	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		id := opts.ID
		if id == "" {
			existing, err := e.Repo.ListTaskIDsTx(ctx, tx)
			if err != nil {
				return err
			}
			id, err = ids.FormatTaskID(opts.Role, opts.Priority, ids.NextNumber(existing))
			if err != nil {
				return invalid("id", err)
			}
		} else if exists, err := e.Repo.TaskExistsTx(ctx, tx, id); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: task %s already exists", ErrDuplicateKey, id)
		}
		now := e.timestamp()
		t = domain.Task{
			ID:          id,
			Title:       opts.Title,
			Status:      domain.TaskTodo,
			Priority:    opts.Priority,
			Role:        opts.Role,
			Category:    category,
			Description: opts.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if opts.EpicID != "" {
			if _, err := e.Repo.GetEpicTx(ctx, tx, opts.EpicID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return &ReferentialError{Kind: "task", ID: id, Ref: "epic", RefID: opts.EpicID}
				}
				return err
			}
			t.EpicID = &opts.EpicID
		}
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: task %s already exists", ErrDuplicateKey, id)
			}
			return err
		}
		for _, dep := range opts.DependsOn {
			err := e.addDependencyTx(ctx, tx, id, dep)
			var nf *NotFoundError
			switch {
			case err == nil, errors.Is(err, ErrDuplicateEdge):
			case errors.As(err, &nf):
				return &ReferentialError{Kind: "task", ID: id, Ref: "task", RefID: dep}
			default:
				return err
			}
		}
		if err := e.event(ctx, tx, "task.created", events.KindTask, id, events.EventPayload{
			"title": t.Title, "role": t.Role, "priority": t.Priority, "epic_id": opts.EpicID,
		}); err != nil {
			return err
		}
		if t.EpicID != nil {
			if _, err := e.RecomputeEpicTx(ctx, tx, *t.EpicID); err != nil {
				return err
			}
		}
		deps, err := e.Repo.ListTaskDependenciesTx(ctx, tx, id)
		if err != nil {
			return err
		}
		t.DependsOn = deps
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, wrapNotFound(err, "task", id)
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// ClaimTask moves a task to UNDERWAY and assigns it to missionID when given.
// A task whose blocking review is still pending cannot be claimed.
func (e Engine) ClaimTask(ctx context.Context, id string, missionID *int64) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "task", id)
		}
		if rv, blocked, err := e.pendingBlockTx(ctx, tx, t); err != nil {
			return err
		} else if blocked {
			return &ReviewBlockedError{TaskID: id, Review: rv}
		}
		if missionID != nil {
			if _, err := e.Repo.GetMissionTx(ctx, tx, *missionID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return &ReferentialError{Kind: "task", ID: id, Ref: "mission", RefID: fmt.Sprint(*missionID)}
				}
				return err
			}
		}
		from := t.Status
		now := e.timestamp()
		applyStatus(&t, domain.TaskUnderway, now)
		t.ClaimedAt = &now
		t.CurrentMissionID = missionID
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return err
		}
		payload := events.EventPayload{"from_status": from, "to_status": t.Status}
		if missionID != nil {
			payload["mission_id"] = *missionID
		}
		if err := e.event(ctx, tx, "task.claimed", events.KindTask, id, payload); err != nil {
			return err
		}
		return e.recomputeLinkedEpic(ctx, tx, t)
	})
	return t, err
}

// ReleaseTask returns a claimed task to TODO and clears its mission.
func (e Engine) ReleaseTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "task", id)
		}
		if t.Status.Closed() {
			return invalidf("status", "task %s is %s and cannot be released", id, t.Status)
		}
		from := t.Status
		applyStatus(&t, domain.TaskTodo, e.timestamp())
		t.CurrentMissionID = nil
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return err
		}
		if err := e.event(ctx, tx, "task.released", events.KindTask, id, events.EventPayload{"from_status": from}); err != nil {
			return err
		}
		return e.recomputeLinkedEpic(ctx, tx, t)
	})
	return t, err
}

// UpdateTaskStatus sets a task's status. Any transition is accepted; the
// timestamps are kept consistent with the new status.
func (e Engine) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, notes *string) (domain.Task, error) {
	if _, err := domain.ParseTaskStatus(string(status)); err != nil {
		return domain.Task{}, invalid("status", err)
	}
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "task", id)
		}
		from := t.Status
		applyStatus(&t, status, e.timestamp())
		if notes != nil {
			t.Notes = *notes
		}
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return err
		}
		if err := e.event(ctx, tx, "task.status", events.KindTask, id, events.EventPayload{"from_status": from, "to_status": status}); err != nil {
			return err
		}
		return e.recomputeLinkedEpic(ctx, tx, t)
	})
	return t, err
}

// CloseTask is UpdateTaskStatus restricted to the terminal statuses.
func (e Engine) CloseTask(ctx context.Context, id string, status domain.TaskStatus, notes *string) (domain.Task, error) {
	if !status.Closed() {
		return domain.Task{}, invalidf("status", "close requires COMPLETE or ABORTED, got %s", status)
	}
	return e.UpdateTaskStatus(ctx, id, status, notes)
}

// TaskUpdate carries optional edits to descriptive task fields.
type TaskUpdate struct {
	Title       *string
	Description *string
	Notes       *string
	Category    *domain.Category
}

func (e Engine) UpdateTask(ctx context.Context, id string, u TaskUpdate) (domain.Task, error) {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return domain.Task{}, invalidf("title", "title cannot be empty")
	}
	if u.Category != nil && *u.Category != "" {
		if _, err := domain.ParseCategory(string(*u.Category)); err != nil {
			return domain.Task{}, invalid("category", err)
		}
	}
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "task", id)
		}
		var fields []string
		if u.Title != nil {
			t.Title = strings.TrimSpace(*u.Title)
			fields = append(fields, "title")
		}
		if u.Description != nil {
			t.Description = *u.Description
			fields = append(fields, "description")
		}
		if u.Notes != nil {
			t.Notes = *u.Notes
			fields = append(fields, "notes")
		}
		if u.Category != nil {
			if *u.Category == "" {
				t.Category = nil
			} else {
				c := *u.Category
				t.Category = &c
			}
			fields = append(fields, "category")
		}
		if len(fields) == 0 {
			return invalidf("", "no fields to update")
		}
		t.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return err
		}
		return e.event(ctx, tx, "task.updated", events.KindTask, id, events.EventPayload{"fields": fields})
	})
	return t, err
}

// applyStatus moves t to status and adjusts the lifecycle timestamps so that
// claimed_at is unset for TODO, closed_at is set only for terminal statuses,
// and paused_at is set only while PAUSED.
func applyStatus(t *domain.Task, status domain.TaskStatus, now string) {
	t.Status = status
	t.UpdatedAt = now
	if status == domain.TaskTodo {
		t.ClaimedAt = nil
	}
	if status.Closed() {
		t.ClosedAt = &now
	} else {
		t.ClosedAt = nil
	}
	if status == domain.TaskPaused {
		t.PausedAt = &now
	} else {
		t.PausedAt = nil
	}
}

func (e Engine) recomputeLinkedEpic(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	if t.EpicID == nil {
		return nil
	}
	_, err := e.RecomputeEpicTx(ctx, tx, *t.EpicID)
	return err
}
