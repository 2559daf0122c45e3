package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// ResetCounts reports how many rows a reset removed per table.
type ResetCounts struct {
	Handoffs     int64 `json:"handoffs"`
	Reviews      int64 `json:"reviews"`
	Dependencies int64 `json:"dependencies"`
	ADRLinks     int64 `json:"adr_links"`
	Tasks        int64 `json:"tasks"`
	Epics        int64 `json:"epics"`
	Missions     int64 `json:"missions"`
}

func deleteAll(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", table, err)
	}
	return res.RowsAffected()
}

// ResetWorkTx deletes every workflow row, children before parents, and
// zeroes persona usage. Personas, ADR records and the event log are kept.
func (r Repo) ResetWorkTx(ctx context.Context, tx *sql.Tx) (ResetCounts, error) {
	var c ResetCounts
	steps := []struct {
		table string
		count *int64
	}{
		{"handoffs", &c.Handoffs},
		{"task_deps", &c.Dependencies},
		{"task_architecture_docs", &c.ADRLinks},
		{"epic_architecture_docs", &c.ADRLinks},
		{"tasks", &c.Tasks},
		{"reviews", &c.Reviews},
		{"epics", &c.Epics},
		{"missions", &c.Missions},
	}
	for _, s := range steps {
		n, err := deleteAll(ctx, tx, s.table)
		if err != nil {
			return c, err
		}
		*s.count += n
	}
	if _, err := tx.ExecContext(ctx, `UPDATE personas SET mission_count=0, last_mission_at=NULL`); err != nil {
		return c, err
	}
	return c, nil
}

// Vacuum compacts the database file. It cannot run inside a transaction.
func (r Repo) Vacuum(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `VACUUM`)
	return err
}

// FKViolation is one row whose foreign key points at a missing parent.
// OnDelete is the declared action of the broken key, which is how a repair
// resolves it.
type FKViolation struct {
	Table    string
	RowID    int64
	Parent   string
	Column   string
	OnDelete string
}

// ForeignKeyViolationsTx lists rows left dangling while enforcement was off,
// for example by an older tool or a manual edit.
func (r Repo) ForeignKeyViolationsTx(ctx context.Context, tx *sql.Tx) ([]FKViolation, error) {
	rows, err := tx.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return nil, err
	}
	type raw struct {
		table, parent string
		rowid         sql.NullInt64
		fkid          int
	}
	var found []raw
	for rows.Next() {
		var v raw
		if err := rows.Scan(&v.table, &v.rowid, &v.parent, &v.fkid); err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, v)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	keys := map[string]map[int]fkDef{}
	var out []FKViolation
	for _, v := range found {
		defs, ok := keys[v.table]
		if !ok {
			if defs, err = foreignKeys(ctx, tx, v.table); err != nil {
				return nil, err
			}
			keys[v.table] = defs
		}
		def := defs[v.fkid]
		out = append(out, FKViolation{Table: v.table, RowID: v.rowid.Int64, Parent: v.parent, Column: def.from, OnDelete: def.onDelete})
	}
	return out, nil
}

type fkDef struct {
	from     string
	onDelete string
}

func foreignKeys(ctx context.Context, tx *sql.Tx, table string) (map[int]fkDef, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, "from", on_delete FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]fkDef{}
	for rows.Next() {
		var id int
		var d fkDef
		if err := rows.Scan(&id, &d.from, &d.onDelete); err != nil {
			return nil, err
		}
		out[id] = d
	}
	return out, rows.Err()
}

// RepairFKViolationTx applies the key's ON DELETE action to the dangling row.
// It reports false for RESTRICT and NO ACTION keys, which need a person.
func (r Repo) RepairFKViolationTx(ctx context.Context, tx *sql.Tx, v FKViolation) (bool, error) {
	switch v.OnDelete {
	case "SET NULL":
		return changed(tx.ExecContext(ctx, `UPDATE `+v.Table+` SET "`+v.Column+`"=NULL WHERE rowid=?`, v.RowID))
	case "CASCADE":
		return changed(tx.ExecContext(ctx, `DELETE FROM `+v.Table+` WHERE rowid=?`, v.RowID))
	}
	return false, nil
}

func (r Repo) UnderwayWithoutClaimTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return listIDs(ctx, tx, `SELECT id FROM tasks WHERE status='UNDERWAY' AND claimed_at IS NULL ORDER BY id`)
}

// TasksHeldByEndedMissionsTx lists UNDERWAY tasks whose mission has ended.
func (r Repo) TasksHeldByEndedMissionsTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return listIDs(ctx, tx, `SELECT t.id FROM tasks t JOIN missions m ON m.id=t.current_mission_id
		WHERE t.status='UNDERWAY' AND m.end_time IS NOT NULL ORDER BY t.id`)
}

// PersonaUsage compares a persona's stored counters with its missions.
type PersonaUsage struct {
	Name              string
	StoredCount       int
	ActualCount       int
	StoredLastMission *string
	ActualLastMission *string
}

// PersonaUsageDriftTx lists personas whose mission_count or last_mission_at
// disagree with the missions table.
func (r Repo) PersonaUsageDriftTx(ctx context.Context, tx *sql.Tx) ([]PersonaUsage, error) {
	rows, err := tx.QueryContext(ctx, `SELECT p.name, p.mission_count, p.last_mission_at, count(m.id), max(m.start_time)
		FROM personas p LEFT JOIN missions m ON m.persona_name=p.name
		GROUP BY p.name
		HAVING p.mission_count<>count(m.id) OR COALESCE(p.last_mission_at,'')<>COALESCE(max(m.start_time),'')
		ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PersonaUsage
	for rows.Next() {
		var u PersonaUsage
		var stored, actual sql.NullString
		if err := rows.Scan(&u.Name, &u.StoredCount, &stored, &u.ActualCount, &actual); err != nil {
			return nil, err
		}
		u.StoredLastMission = stringPtr(stored)
		u.ActualLastMission = stringPtr(actual)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r Repo) SetPersonaUsageTx(ctx context.Context, tx *sql.Tx, name string, count int, last *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE personas SET mission_count=?, last_mission_at=? WHERE name=?`, count, nullableStringPtr(last), name)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
