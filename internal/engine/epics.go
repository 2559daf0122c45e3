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

type EpicCreateOptions struct {
	// ID is optional; the next epic number is allocated when empty.
	ID          string
	Title       string
	Priority    domain.Priority
	Description string
}

func (e Engine) CreateEpic(ctx context.Context, opts EpicCreateOptions) (domain.Epic, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Epic{}, invalidf("title", "title is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Epic{}, invalid("priority", &domain.EnumError{Kind: "priority", Value: string(opts.Priority)})
	}
	if opts.ID != "" {
		parsed, err := ids.ParseEpicID(opts.ID)
		if err != nil {
			return domain.Epic{}, invalid("id", err)
		}
		if parsed.Priority != opts.Priority {
			return domain.Epic{}, invalid("id", &IDMismatchError{ID: opts.ID, Field: "priority", Encoded: string(parsed.Priority), Supplied: string(opts.Priority)})
		}
	}
	var ep domain.Epic
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		id := opts.ID
		if id == "" {
			existing, err := e.Repo.ListEpicIDsTx(ctx, tx)
			if err != nil {
				return err
			}
			id, err = ids.FormatEpicID(opts.Priority, ids.NextNumber(existing))
			if err != nil {
				return invalid("id", err)
			}
		}
		now := e.timestamp()
		ep = domain.Epic{
			ID:          id,
			Title:       opts.Title,
			Description: opts.Description,
			Priority:    opts.Priority,
			Status:      domain.EpicTodo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertEpicTx(ctx, tx, ep); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: epic %s already exists", ErrDuplicateKey, id)
			}
			return err
		}
		return e.event(ctx, tx, "epic.created", events.KindEpic, id, events.EventPayload{"title": ep.Title, "priority": ep.Priority})
	})
	return ep, err
}

func (e Engine) GetEpic(ctx context.Context, id string) (domain.Epic, error) {
	ep, err := e.Repo.GetEpic(ctx, id)
	if err != nil {
		return ep, wrapNotFound(err, "epic", id)
	}
	return ep, nil
}

func (e Engine) ListEpics(ctx context.Context, f repo.EpicFilters) ([]domain.Epic, error) {
	return e.Repo.ListEpics(ctx, f)
}

// Subtasks lists the tasks linked to an epic in task order.
func (e Engine) Subtasks(ctx context.Context, epicID string) ([]domain.Task, error) {
	if _, err := e.GetEpic(ctx, epicID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, repo.TaskFilters{EpicID: epicID})
}

// UpdateEpic edits title, description or priority. Status is derived and
// cannot be set here. IDs are permanent, so after a priority change the
// priority code in the ID still records the priority the epic was created with.
func (e Engine) UpdateEpic(ctx context.Context, id string, u repo.EpicUpdate) (domain.Epic, error) {
	if u.Empty() {
		return domain.Epic{}, invalidf("", "no fields to update")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return domain.Epic{}, invalidf("title", "title cannot be empty")
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return domain.Epic{}, invalid("priority", &domain.EnumError{Kind: "priority", Value: string(*u.Priority)})
	}
	var ep domain.Epic
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateEpicTx(ctx, tx, id, u, e.timestamp()); err != nil {
			return wrapNotFound(err, "epic", id)
		}
		var err error
		ep, err = e.Repo.GetEpicTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return e.event(ctx, tx, "epic.updated", events.KindEpic, id, nil)
	})
	return ep, err
}

// RecomputeEpicTx derives an epic's status from its linked tasks and stores
// it. ABORTED epics are left untouched. It must run in the same transaction
// as the task write that triggered it.
func (e Engine) RecomputeEpicTx(ctx context.Context, tx *sql.Tx, epicID string) (domain.Epic, error) {
	ep, err := e.Repo.GetEpicTx(ctx, tx, epicID)
	if err != nil {
		return ep, wrapNotFound(err, "epic", epicID)
	}
	if ep.Status == domain.EpicAborted {
		return ep, nil
	}
	counts, err := e.Repo.EpicTaskCountsTx(ctx, tx, epicID)
	if err != nil {
		return ep, err
	}
	if !epicDrifted(ep, counts) {
		return ep, nil
	}
	next := repo.EpicState{Status: deriveEpicStatus(counts)}
	if next.Status == domain.EpicComplete {
		next.CompletedAt = ep.CompletedAt
		if next.CompletedAt == nil {
			now := e.timestamp()
			next.CompletedAt = &now
		}
	}
	if err := e.Repo.SetEpicStateTx(ctx, tx, epicID, next, e.timestamp()); err != nil {
		return ep, err
	}
	if err := e.event(ctx, tx, "epic.status", events.KindEpic, epicID, events.EventPayload{
		"from_status": ep.Status, "to_status": next.Status, "completed": counts.Completed, "total": counts.Total,
	}); err != nil {
		return ep, err
	}
	e.log().Debug("epic status recomputed", "epic", epicID, "from", ep.Status, "to", next.Status)
	return e.Repo.GetEpicTx(ctx, tx, epicID)
}

func deriveEpicStatus(c repo.EpicTaskCounts) domain.EpicStatus {
	switch {
	case c.Total > 0 && c.Completed == c.Total:
		return domain.EpicComplete
	case c.Started > 0:
		return domain.EpicUnderway
	}
	return domain.EpicTodo
}

// epicDrifted reports whether a stored epic disagrees with its subtasks.
// ABORTED epics never drift.
func epicDrifted(ep domain.Epic, c repo.EpicTaskCounts) bool {
	if ep.Status == domain.EpicAborted {
		return false
	}
	next := deriveEpicStatus(c)
	return next != ep.Status || (next == domain.EpicComplete && ep.CompletedAt == nil)
}

// SyncEpics recomputes the given epics, or every epic when none are named.
func (e Engine) SyncEpics(ctx context.Context, epicIDs ...string) ([]domain.Epic, error) {
	var out []domain.Epic
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		out = out[:0]
		targets := epicIDs
		if len(targets) == 0 {
			all, err := e.Repo.ListEpicIDsTx(ctx, tx)
			if err != nil {
				return err
			}
			targets = all
		}
		for _, id := range targets {
			ep, err := e.RecomputeEpicTx(ctx, tx, id)
			if err != nil {
				return err
			}
			out = append(out, ep)
		}
		return nil
	})
	return out, err
}

// AbortEpic marks the epic ABORTED and aborts every linked task, clearing
// their mission assignment. It cannot be undone; callers confirm first.
func (e Engine) AbortEpic(ctx context.Context, id, reason string) (domain.Epic, error) {
	var ep domain.Epic
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetEpicTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "epic", id)
		}
		if current.Status == domain.EpicAborted {
			e.log().Warn("epic already aborted", "epic", id)
			ep = current
			return nil
		}
		now := e.timestamp()
		if err := e.Repo.AbortEpicTx(ctx, tx, id, reason, now); err != nil {
			return err
		}
		n, err := e.Repo.AbortEpicTasksTx(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if err := e.event(ctx, tx, "epic.aborted", events.KindEpic, id, events.EventPayload{"reason": reason, "tasks_aborted": n}); err != nil {
			return err
		}
		e.log().Info("epic aborted", "epic", id, "tasks", n)
		ep, err = e.Repo.GetEpicTx(ctx, tx, id)
		return err
	})
	return ep, err
}

// LinkTask attaches a task to an epic, moving it off any previous epic.
// Both affected epics are recomputed.
func (e Engine) LinkTask(ctx context.Context, taskID, epicID string) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetEpicTx(ctx, tx, epicID); err != nil {
			return wrapNotFound(err, "epic", epicID)
		}
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return wrapNotFound(err, "task", taskID)
		}
		previous := t.EpicID
		if err := e.Repo.SetTaskEpicTx(ctx, tx, taskID, &epicID, e.timestamp()); err != nil {
			return err
		}
		if err := e.event(ctx, tx, "epic.task.linked", events.KindEpic, epicID, events.EventPayload{"task_id": taskID}); err != nil {
			return err
		}
		if previous != nil && *previous != epicID {
			if _, err := e.RecomputeEpicTx(ctx, tx, *previous); err != nil {
				return err
			}
		}
		if _, err := e.RecomputeEpicTx(ctx, tx, epicID); err != nil {
			return err
		}
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		return err
	})
	return t, err
}

// UnlinkTask detaches a task from its epic. A task with no epic is left as is.
func (e Engine) UnlinkTask(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return wrapNotFound(err, "task", taskID)
		}
		if t.EpicID == nil {
			return nil
		}
		epicID := *t.EpicID
		if err := e.Repo.SetTaskEpicTx(ctx, tx, taskID, nil, e.timestamp()); err != nil {
			return err
		}
		if err := e.event(ctx, tx, "epic.task.unlinked", events.KindEpic, epicID, events.EventPayload{"task_id": taskID}); err != nil {
			return err
		}
		if _, err := e.RecomputeEpicTx(ctx, tx, epicID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		return err
	})
	return t, err
}
