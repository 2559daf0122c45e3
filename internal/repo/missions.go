package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dusktreader/site-nine/internal/domain"
)

const missionColumns = `id,persona_name,role,codename,objective,start_time,end_time,created_at,updated_at`

func scanMission(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var objective, end sql.NullString
	if err := row.Scan(&m.ID, &m.PersonaName, &m.Role, &m.Codename, &objective, &m.StartTime, &end, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return m, notFound(err)
	}
	m.Objective = objective.String
	m.EndTime = stringPtr(end)
	return m, nil
}

// InsertMissionTx inserts m and returns the assigned id.
func (r Repo) InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO missions(persona_name,role,codename,objective,start_time,end_time,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.PersonaName, m.Role, m.Codename, nullable(m.Objective), m.StartTime, nullableStringPtr(m.EndTime), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetMissionCodenameTx(ctx context.Context, tx *sql.Tx, id int64, codename string) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET codename=? WHERE id=?`, codename, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func getMission(ctx context.Context, q queryer, id int64) (domain.Mission, error) {
	return scanMission(q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

func (r Repo) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	return getMission(ctx, r.DB, id)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Mission, error) {
	return getMission(ctx, tx, id)
}

// EndMissionTx stamps end_time on an active mission. It reports whether a row changed.
func (r Repo) EndMissionTx(ctx context.Context, tx *sql.Tx, id int64, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET end_time=?, updated_at=? WHERE id=? AND end_time IS NULL`, ts, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type MissionUpdate struct {
	Objective *string
	Role      *domain.Role
}

func (r Repo) UpdateMissionTx(ctx context.Context, tx *sql.Tx, id int64, u MissionUpdate, ts string) error {
	fields := []string{"updated_at=?"}
	args := []any{ts}
	if u.Objective != nil {
		fields = append(fields, "objective=?")
		args = append(args, nullable(*u.Objective))
	}
	if u.Role != nil {
		fields = append(fields, "role=?")
		args = append(args, *u.Role)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE missions SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

type MissionFilters struct {
	ActiveOnly bool
	Role       domain.Role
	Persona    string
	Limit      int
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if f.ActiveOnly {
		clauses = append(clauses, "end_time IS NULL")
	}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Persona != "" {
		clauses = append(clauses, "persona_name=?")
		args = append(args, f.Persona)
	}
	query := `SELECT ` + missionColumns + ` FROM missions` + whereClause(clauses) + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
