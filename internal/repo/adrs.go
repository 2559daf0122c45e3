package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dusktreader/site-nine/internal/domain"
)

const adrColumns = `id,title,status,file_path,created_at,updated_at`

func scanADR(row rowScanner) (domain.ADR, error) {
	var a domain.ADR
	if err := row.Scan(&a.ID, &a.Title, &a.Status, &a.FilePath, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, notFound(err)
	}
	return a, nil
}

func (r Repo) InsertADRTx(ctx context.Context, tx *sql.Tx, a domain.ADR) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO architecture_docs(`+adrColumns+`) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Title, a.Status, a.FilePath, a.CreatedAt, a.UpdatedAt)
	return err
}

// getADR loads the record and the keys of everything linked to it.
func getADR(ctx context.Context, q queryer, id string) (domain.ADR, error) {
	a, err := scanADR(q.QueryRowContext(ctx, `SELECT `+adrColumns+` FROM architecture_docs WHERE id=?`, id))
	if err != nil {
		return a, err
	}
	if a.EpicIDs, err = listIDs(ctx, q, `SELECT epic_id FROM epic_architecture_docs WHERE adr_id=? ORDER BY epic_id`, id); err != nil {
		return a, err
	}
	a.TaskIDs, err = listIDs(ctx, q, `SELECT task_id FROM task_architecture_docs WHERE adr_id=? ORDER BY task_id`, id)
	return a, err
}

func (r Repo) GetADR(ctx context.Context, id string) (domain.ADR, error) {
	return getADR(ctx, r.DB, id)
}

func (r Repo) GetADRTx(ctx context.Context, tx *sql.Tx, id string) (domain.ADR, error) {
	return getADR(ctx, tx, id)
}

func (r Repo) ListADRIDsTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return listIDs(ctx, tx, `SELECT id FROM architecture_docs`)
}

func queryADRs(ctx context.Context, q queryer, query string, args ...any) ([]domain.ADR, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ADR
	for rows.Next() {
		a, err := scanADR(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListADRs returns records in ID order, optionally narrowed to one status.
func (r Repo) ListADRs(ctx context.Context, status domain.ADRStatus) ([]domain.ADR, error) {
	var clauses []string
	var args []any
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	return queryADRs(ctx, r.DB, `SELECT `+adrColumns+` FROM architecture_docs`+whereClause(clauses)+` ORDER BY id`, args...)
}

type ADRUpdate struct {
	Title    *string
	Status   *domain.ADRStatus
	FilePath *string
}

func (u ADRUpdate) Empty() bool {
	return u.Title == nil && u.Status == nil && u.FilePath == nil
}

func (r Repo) UpdateADRTx(ctx context.Context, tx *sql.Tx, id string, u ADRUpdate, ts string) error {
	fields := []string{"updated_at=?"}
	args := []any{ts}
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.FilePath != nil {
		fields = append(fields, "file_path=?")
		args = append(args, *u.FilePath)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE architecture_docs SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// ADRTarget names the link table an ADR is attached through.
type ADRTarget string

const (
	ADRTargetEpic ADRTarget = "epic"
	ADRTargetTask ADRTarget = "task"
)

func (t ADRTarget) table() (table, column string) {
	if t == ADRTargetEpic {
		return "epic_architecture_docs", "epic_id"
	}
	return "task_architecture_docs", "task_id"
}

// LinkADRTx attaches adrID to an epic or task and reports false when the
// link already existed.
func (r Repo) LinkADRTx(ctx context.Context, tx *sql.Tx, target ADRTarget, targetID, adrID, ts string) (bool, error) {
	table, column := target.table()
	return changed(tx.ExecContext(ctx, `INSERT INTO `+table+`(`+column+`,adr_id,created_at) VALUES (?,?,?) ON CONFLICT DO NOTHING`,
		targetID, adrID, ts))
}

// UnlinkADRTx removes a link and reports false when there was none.
func (r Repo) UnlinkADRTx(ctx context.Context, tx *sql.Tx, target ADRTarget, targetID, adrID string) (bool, error) {
	table, column := target.table()
	return changed(tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+column+`=? AND adr_id=?`, targetID, adrID))
}

// LinkedADRs lists the records attached to one epic or task.
func (r Repo) LinkedADRs(ctx context.Context, target ADRTarget, targetID string) ([]domain.ADR, error) {
	table, column := target.table()
	return queryADRs(ctx, r.DB, `SELECT a.id,a.title,a.status,a.file_path,a.created_at,a.updated_at
		FROM architecture_docs a JOIN `+table+` l ON l.adr_id=a.id WHERE l.`+column+`=? ORDER BY a.id`, targetID)
}
