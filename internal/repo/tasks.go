package repo

import (
	"context"
	"database/sql"

	"github.com/dusktreader/site-nine/internal/domain"
)

const taskColumns = `id,title,status,priority,role,category,description,notes,epic_id,current_mission_id,blocks_on_review_id,claimed_at,closed_at,paused_at,created_at,updated_at`

// taskOrder sorts by priority rank, then role prefix, then sequence number.
const taskOrder = ` ORDER BY CASE priority WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 ELSE 3 END, substr(id,1,3), CAST(substr(id,-4) AS INTEGER)`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var category, desc, notes, epicID, claimed, closed, paused sql.NullString
	var missionID, reviewID sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Status, &t.Priority, &t.Role, &category, &desc, &notes, &epicID,
		&missionID, &reviewID, &claimed, &closed, &paused, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, notFound(err)
	}
	if category.Valid {
		c := domain.Category(category.String)
		t.Category = &c
	}
	t.Description = desc.String
	t.Notes = notes.String
	t.EpicID = stringPtr(epicID)
	t.CurrentMissionID = int64Ptr(missionID)
	t.BlocksOnReviewID = int64Ptr(reviewID)
	t.ClaimedAt = stringPtr(claimed)
	t.ClosedAt = stringPtr(closed)
	t.PausedAt = stringPtr(paused)
	return t, nil
}

func taskArgs(t domain.Task) []any {
	var category any
	if t.Category != nil {
		category = string(*t.Category)
	}
	return []any{t.ID, t.Title, t.Status, t.Priority, t.Role, category, nullable(t.Description), nullable(t.Notes),
		nullableStringPtr(t.EpicID), nullableInt64Ptr(t.CurrentMissionID), nullableInt64Ptr(t.BlocksOnReviewID),
		nullableStringPtr(t.ClaimedAt), nullableStringPtr(t.ClosedAt), nullableStringPtr(t.PausedAt), t.CreatedAt, t.UpdatedAt}
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, taskArgs(t)...)
	return err
}

// UpdateTaskTx writes every mutable column of t.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	args := taskArgs(t)[1:]
	args = append(args[:len(args)-2], t.UpdatedAt, t.ID)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?,status=?,priority=?,role=?,category=?,description=?,notes=?,epic_id=?,current_mission_id=?,blocks_on_review_id=?,claimed_at=?,closed_at=?,paused_at=?,updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func getTask(ctx context.Context, q queryer, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	t.DependsOn, err = listDependencies(ctx, q, id)
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func (r Repo) TaskExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListTaskIDsTx returns every task key; callers derive the next sequence from it.
func (r Repo) ListTaskIDsTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return listIDs(ctx, tx, `SELECT id FROM tasks`)
}

func listIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

type TaskFilters struct {
	Status    domain.TaskStatus
	Role      domain.Role
	Priority  domain.Priority
	Category  domain.Category
	EpicID    string
	MissionID *int64
	OpenOnly  bool
}

func listTasks(ctx context.Context, q queryer, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.EpicID != "" {
		clauses = append(clauses, "epic_id=?")
		args = append(args, f.EpicID)
	}
	if f.MissionID != nil {
		clauses = append(clauses, "current_mission_id=?")
		args = append(args, *f.MissionID)
	}
	if f.OpenOnly {
		clauses = append(clauses, "status NOT IN ('COMPLETE','ABORTED')")
	}
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+whereClause(clauses)+taskOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return listTasks(ctx, r.DB, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	return listTasks(ctx, tx, f)
}

// SetTaskEpicTx links a task to an epic, or unlinks it when epicID is nil.
func (r Repo) SetTaskEpicTx(ctx context.Context, tx *sql.Tx, taskID string, epicID *string, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET epic_id=?, updated_at=? WHERE id=?`, nullableStringPtr(epicID), ts, taskID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SetTaskReviewBlockTx sets or clears blocks_on_review_id.
func (r Repo) SetTaskReviewBlockTx(ctx context.Context, tx *sql.Tx, taskID string, reviewID *int64, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET blocks_on_review_id=?, updated_at=? WHERE id=?`, nullableInt64Ptr(reviewID), ts, taskID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// AbortEpicTasksTx closes every task linked to epicID as ABORTED and clears
// its mission. It returns the number of tasks touched.
func (r Repo) AbortEpicTasksTx(ctx context.Context, tx *sql.Tx, epicID, ts string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status='ABORTED', closed_at=?, paused_at=NULL, current_mission_id=NULL, updated_at=? WHERE epic_id=?`,
		ts, ts, epicID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.TaskStatus]int{}
	for rows.Next() {
		var status domain.TaskStatus
		var c int
		if err := rows.Scan(&status, &c); err != nil {
			return nil, err
		}
		res[status] = c
	}
	return res, rows.Err()
}
