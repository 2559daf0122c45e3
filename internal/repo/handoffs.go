package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dusktreader/site-nine/internal/domain"
)

const handoffColumns = `id,task_id,from_mission_id,to_role,to_mission_id,status,summary,files_json,acceptance_criteria,notes,created_at,accepted_at,completed_at`

func scanHandoff(row rowScanner) (domain.Handoff, error) {
	var h domain.Handoff
	var toMission sql.NullInt64
	var files, criteria, notes, accepted, completed sql.NullString
	err := row.Scan(&h.ID, &h.TaskID, &h.FromMissionID, &h.ToRole, &toMission, &h.Status, &h.Summary, &files, &criteria, &notes,
		&h.CreatedAt, &accepted, &completed)
	if err != nil {
		return h, notFound(err)
	}
	h.ToMissionID = int64Ptr(toMission)
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &h.Files); err != nil {
			return h, fmt.Errorf("handoff %d files: %w", h.ID, err)
		}
	}
	h.AcceptanceCriteria = criteria.String
	h.Notes = notes.String
	h.AcceptedAt = stringPtr(accepted)
	h.CompletedAt = stringPtr(completed)
	return h, nil
}

func (r Repo) InsertHandoffTx(ctx context.Context, tx *sql.Tx, h domain.Handoff) (int64, error) {
	var files any
	if len(h.Files) > 0 {
		b, err := json.Marshal(h.Files)
		if err != nil {
			return 0, err
		}
		files = string(b)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO handoffs(task_id,from_mission_id,to_role,status,summary,files_json,acceptance_criteria,notes,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		h.TaskID, h.FromMissionID, h.ToRole, h.Status, h.Summary, files, nullable(h.AcceptanceCriteria), nullable(h.Notes), h.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func getHandoff(ctx context.Context, q queryer, id int64) (domain.Handoff, error) {
	return scanHandoff(q.QueryRowContext(ctx, `SELECT `+handoffColumns+` FROM handoffs WHERE id=?`, id))
}

func (r Repo) GetHandoff(ctx context.Context, id int64) (domain.Handoff, error) {
	return getHandoff(ctx, r.DB, id)
}

func (r Repo) GetHandoffTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Handoff, error) {
	return getHandoff(ctx, tx, id)
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AcceptHandoffTx moves pending to accepted; other states are left untouched.
func (r Repo) AcceptHandoffTx(ctx context.Context, tx *sql.Tx, id, missionID int64, ts string) (bool, error) {
	return changed(tx.ExecContext(ctx, `UPDATE handoffs SET status='accepted', to_mission_id=?, accepted_at=? WHERE id=? AND status='pending'`, missionID, ts, id))
}

// CompleteHandoffTx moves accepted to completed.
func (r Repo) CompleteHandoffTx(ctx context.Context, tx *sql.Tx, id int64, ts string) (bool, error) {
	return changed(tx.ExecContext(ctx, `UPDATE handoffs SET status='completed', completed_at=? WHERE id=? AND status='accepted'`, ts, id))
}

// CancelHandoffTx moves pending or accepted to cancelled.
func (r Repo) CancelHandoffTx(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	return changed(tx.ExecContext(ctx, `UPDATE handoffs SET status='cancelled' WHERE id=? AND status IN ('pending','accepted')`, id))
}

type HandoffFilters struct {
	ToRole        domain.Role
	Status        domain.HandoffStatus
	TaskID        string
	FromMissionID *int64
	ToMissionID   *int64
}

func (r Repo) ListHandoffs(ctx context.Context, f HandoffFilters) ([]domain.Handoff, error) {
	var clauses []string
	var args []any
	if f.ToRole != "" {
		clauses = append(clauses, "to_role=?")
		args = append(args, f.ToRole)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.FromMissionID != nil {
		clauses = append(clauses, "from_mission_id=?")
		args = append(args, *f.FromMissionID)
	}
	if f.ToMissionID != nil {
		clauses = append(clauses, "to_mission_id=?")
		args = append(args, *f.ToMissionID)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+handoffColumns+` FROM handoffs`+whereClause(clauses)+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
