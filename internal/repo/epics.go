package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dusktreader/site-nine/internal/domain"
)

const epicSelect = `SELECT e.id,e.title,e.description,e.priority,e.status,e.aborted_reason,e.completed_at,e.aborted_at,e.created_at,e.updated_at,
	(SELECT count(*) FROM tasks t WHERE t.epic_id=e.id),
	(SELECT count(*) FROM tasks t WHERE t.epic_id=e.id AND t.status='COMPLETE')
	FROM epics e`

func scanEpic(row rowScanner) (domain.Epic, error) {
	var e domain.Epic
	var desc, reason, completed, aborted sql.NullString
	err := row.Scan(&e.ID, &e.Title, &desc, &e.Priority, &e.Status, &reason, &completed, &aborted, &e.CreatedAt, &e.UpdatedAt,
		&e.SubtaskCount, &e.CompletedCount)
	if err != nil {
		return e, notFound(err)
	}
	e.Description = desc.String
	e.AbortedReason = stringPtr(reason)
	e.CompletedAt = stringPtr(completed)
	e.AbortedAt = stringPtr(aborted)
	return e, nil
}

func (r Repo) InsertEpicTx(ctx context.Context, tx *sql.Tx, e domain.Epic) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO epics(id,title,description,priority,status,aborted_reason,completed_at,aborted_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Title, nullable(e.Description), e.Priority, e.Status, nullableStringPtr(e.AbortedReason),
		nullableStringPtr(e.CompletedAt), nullableStringPtr(e.AbortedAt), e.CreatedAt, e.UpdatedAt)
	return err
}

func getEpic(ctx context.Context, q queryer, id string) (domain.Epic, error) {
	return scanEpic(q.QueryRowContext(ctx, epicSelect+` WHERE e.id=?`, id))
}

func (r Repo) GetEpic(ctx context.Context, id string) (domain.Epic, error) {
	return getEpic(ctx, r.DB, id)
}

func (r Repo) GetEpicTx(ctx context.Context, tx *sql.Tx, id string) (domain.Epic, error) {
	return getEpic(ctx, tx, id)
}

func (r Repo) ListEpicIDsTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return listIDs(ctx, tx, `SELECT id FROM epics ORDER BY id`)
}

type EpicFilters struct {
	Status   domain.EpicStatus
	Priority domain.Priority
}

func (r Repo) ListEpics(ctx context.Context, f EpicFilters) ([]domain.Epic, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "e.status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "e.priority=?")
		args = append(args, f.Priority)
	}
	rows, err := r.DB.QueryContext(ctx, epicSelect+whereClause(clauses)+` ORDER BY e.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EpicState is the stored status slice of an epic that recomputation writes.
type EpicState struct {
	Status      domain.EpicStatus
	CompletedAt *string
}

func (r Repo) SetEpicStateTx(ctx context.Context, tx *sql.Tx, id string, s EpicState, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE epics SET status=?, completed_at=?, updated_at=? WHERE id=?`,
		s.Status, nullableStringPtr(s.CompletedAt), ts, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// EpicTaskCounts summarises the tasks linked to an epic.
type EpicTaskCounts struct {
	Total     int
	Completed int
	Started   int
}

func (r Repo) EpicTaskCountsTx(ctx context.Context, tx *sql.Tx, epicID string) (EpicTaskCounts, error) {
	var c EpicTaskCounts
	err := tx.QueryRowContext(ctx, `SELECT count(*),
		COALESCE(SUM(CASE WHEN status='COMPLETE' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status<>'TODO' THEN 1 ELSE 0 END),0)
		FROM tasks WHERE epic_id=?`, epicID).Scan(&c.Total, &c.Completed, &c.Started)
	return c, err
}

func (r Repo) AbortEpicTx(ctx context.Context, tx *sql.Tx, id, reason, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE epics SET status='ABORTED', aborted_reason=?, aborted_at=?, updated_at=? WHERE id=?`,
		nullable(reason), ts, ts, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

type EpicUpdate struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
}

func (u EpicUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil
}

func (r Repo) UpdateEpicTx(ctx context.Context, tx *sql.Tx, id string, u EpicUpdate, ts string) error {
	fields := []string{"updated_at=?"}
	args := []any{ts}
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *u.Priority)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE epics SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
