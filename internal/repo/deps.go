package repo

import (
	"context"
	"database/sql"
)

func listDependencies(ctx context.Context, q queryer, taskID string) ([]string, error) {
	return listIDs(ctx, q, `SELECT depends_on_task_id FROM task_deps WHERE task_id=? ORDER BY depends_on_task_id`, taskID)
}

func (r Repo) ListTaskDependencies(ctx context.Context, taskID string) ([]string, error) {
	return listDependencies(ctx, r.DB, taskID)
}

func (r Repo) ListTaskDependenciesTx(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	return listDependencies(ctx, tx, taskID)
}

// ListDependents returns the tasks that depend on taskID.
func (r Repo) ListDependents(ctx context.Context, taskID string) ([]string, error) {
	return listIDs(ctx, r.DB, `SELECT task_id FROM task_deps WHERE depends_on_task_id=? ORDER BY task_id`, taskID)
}

// AddDependencyTx inserts one edge and reports false when it already existed.
func (r Repo) AddDependencyTx(ctx context.Context, tx *sql.Tx, taskID, dependsOn, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO task_deps(task_id,depends_on_task_id,created_at) VALUES (?,?,?) ON CONFLICT DO NOTHING`, taskID, dependsOn, ts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) RemoveDependencyTx(ctx context.Context, tx *sql.Tx, taskID, dependsOn string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_deps WHERE task_id=? AND depends_on_task_id=?`, taskID, dependsOn)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
