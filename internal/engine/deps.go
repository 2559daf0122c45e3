package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/repo"
)

// AddDependency records that taskID depends on dependsOn. Re-adding an
// existing edge returns ErrDuplicateEdge and changes nothing. Cycles are not
// detected.
func (e Engine) AddDependency(ctx context.Context, taskID, dependsOn string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		return e.addDependencyTx(ctx, tx, taskID, dependsOn)
	})
}

func (e Engine) addDependencyTx(ctx context.Context, tx *sql.Tx, taskID, dependsOn string) error {
	if taskID == dependsOn {
		return invalidf("depends_on", "task %s cannot depend on itself", taskID)
	}
	for _, id := range []string{taskID, dependsOn} {
		exists, err := e.Repo.TaskExistsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return &NotFoundError{Kind: "task", ID: id}
		}
	}
	added, err := e.Repo.AddDependencyTx(ctx, tx, taskID, dependsOn, e.timestamp())
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, taskID, dependsOn)
	}
	return e.event(ctx, tx, "task.dependency.added", events.KindTask, taskID, events.EventPayload{"depends_on": dependsOn})
}

func (e Engine) RemoveDependency(ctx context.Context, taskID, dependsOn string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RemoveDependencyTx(ctx, tx, taskID, dependsOn); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &NotFoundError{Kind: "dependency", ID: taskID + " -> " + dependsOn}
			}
			return err
		}
		return e.event(ctx, tx, "task.dependency.removed", events.KindTask, taskID, events.EventPayload{"depends_on": dependsOn})
	})
}

// Dependencies returns the prerequisites of taskID.
func (e Engine) Dependencies(ctx context.Context, taskID string) ([]string, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListTaskDependencies(ctx, taskID)
}

// Dependents returns the tasks waiting on taskID.
func (e Engine) Dependents(ctx context.Context, taskID string) ([]string, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListDependents(ctx, taskID)
}
