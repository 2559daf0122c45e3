package repo

import (
	"context"
	"database/sql"

	"github.com/dusktreader/site-nine/internal/domain"
)

const personaColumns = `name,role,mythology,description,mission_count,last_mission_at,created_at`

func scanPersona(row rowScanner) (domain.Persona, error) {
	var p domain.Persona
	var desc, last sql.NullString
	if err := row.Scan(&p.Name, &p.Role, &p.Mythology, &desc, &p.MissionCount, &last, &p.CreatedAt); err != nil {
		return p, notFound(err)
	}
	p.Description = desc.String
	p.LastMissionAt = stringPtr(last)
	return p, nil
}

func (r Repo) InsertPersonaTx(ctx context.Context, tx *sql.Tx, p domain.Persona) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO personas(`+personaColumns+`) VALUES (?,?,?,?,?,?,?)`,
		p.Name, p.Role, p.Mythology, nullable(p.Description), p.MissionCount, nullableStringPtr(p.LastMissionAt), p.CreatedAt)
	return err
}

// InsertPersonaIfMissingTx inserts p unless a persona with the same name exists.
func (r Repo) InsertPersonaIfMissingTx(ctx context.Context, tx *sql.Tx, p domain.Persona) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO personas(`+personaColumns+`) VALUES (?,?,?,?,?,?,?) ON CONFLICT(name) DO NOTHING`,
		p.Name, p.Role, p.Mythology, nullable(p.Description), p.MissionCount, nullableStringPtr(p.LastMissionAt), p.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func getPersona(ctx context.Context, q queryer, name string) (domain.Persona, error) {
	return scanPersona(q.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE name=?`, name))
}

func (r Repo) GetPersona(ctx context.Context, name string) (domain.Persona, error) {
	return getPersona(ctx, r.DB, name)
}

func (r Repo) GetPersonaTx(ctx context.Context, tx *sql.Tx, name string) (domain.Persona, error) {
	return getPersona(ctx, tx, name)
}

type PersonaFilters struct {
	Role       domain.Role
	UnusedOnly bool
	ByUsage    bool
	Exclude    []string
}

func listPersonas(ctx context.Context, q queryer, f PersonaFilters) ([]domain.Persona, error) {
	var clauses []string
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.UnusedOnly {
		clauses = append(clauses, "mission_count=0")
	}
	for _, name := range f.Exclude {
		clauses = append(clauses, "name<>?")
		args = append(args, name)
	}
	order := " ORDER BY role ASC, name ASC"
	if f.ByUsage {
		order = " ORDER BY mission_count DESC, name ASC"
	}
	rows, err := q.QueryContext(ctx, `SELECT `+personaColumns+` FROM personas`+whereClause(clauses)+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListPersonas(ctx context.Context, f PersonaFilters) ([]domain.Persona, error) {
	return listPersonas(ctx, r.DB, f)
}

// LeastUsedPersonaTx picks the persona of role with the lowest mission count,
// breaking ties by name.
func (r Repo) LeastUsedPersonaTx(ctx context.Context, tx *sql.Tx, role domain.Role, exclude []string) (domain.Persona, error) {
	clauses := []string{"role=?"}
	args := []any{role}
	for _, name := range exclude {
		clauses = append(clauses, "name<>?")
		args = append(args, name)
	}
	return scanPersona(tx.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas`+whereClause(clauses)+` ORDER BY mission_count ASC, name ASC LIMIT 1`, args...))
}

// IncrementPersonaMissionsTx bumps the counter and stamps last_mission_at in a single statement.
func (r Repo) IncrementPersonaMissionsTx(ctx context.Context, tx *sql.Tx, name, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE personas SET mission_count=mission_count+1, last_mission_at=? WHERE name=?`, ts, name)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
