package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	applied, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	latest, err := migrate.Latest()
	require.NoError(t, err)
	v, err = migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	applied, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied)

	for _, table := range []string{"personas", "missions", "tasks", "task_deps", "epics", "reviews", "handoffs", "events", "architecture_docs", "epic_architecture_docs", "task_architecture_docs"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestTaskInvariantsEnforcedBySchema(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO tasks(id,title,status,priority,role,claimed_at,created_at,updated_at) VALUES ('OPR-H-0001','t','TODO','HIGH','Operator','2024-01-01T00:00:00Z','x','x')`)
	assert.Error(t, err, "claimed TODO task")

	_, err = conn.Exec(`INSERT INTO tasks(id,title,status,priority,role,created_at,updated_at) VALUES ('OPR-H-0002','t','COMPLETE','HIGH','Operator','x','x')`)
	assert.Error(t, err, "complete task without closed_at")

	_, err = conn.Exec(`INSERT INTO tasks(id,title,status,priority,role,created_at,updated_at) VALUES ('OPR-H-0003','t','PAUSED','HIGH','Operator','x','x')`)
	assert.Error(t, err, "paused task without paused_at")
}

func TestReferencesAndRolesEnforcedBySchema(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO tasks(id,title,status,priority,role,created_at,updated_at) VALUES ('WIZ-H-0001','t','TODO','HIGH','Wizard','x','x')`)
	assert.Error(t, err, "unknown task role")

	_, err = conn.Exec(`INSERT INTO reviews(type,status,task_id,title,requested_at) VALUES ('code','pending','ENG-H-0404','r','x')`)
	assert.Error(t, err, "review for a missing task")

	_, err = conn.Exec(`INSERT INTO tasks(id,title,status,priority,role,created_at,updated_at) VALUES ('ENG-H-0001','t','TODO','HIGH','Engineer','x','x')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO reviews(type,status,task_id,title,requested_at) VALUES ('code','pending','ENG-H-0001','r','x')`)
	require.NoError(t, err)
	_, err = conn.Exec(`DELETE FROM tasks WHERE id='ENG-H-0001'`)
	require.NoError(t, err)
	var taskID *string
	require.NoError(t, conn.QueryRow(`SELECT task_id FROM reviews`).Scan(&taskID))
	assert.Nil(t, taskID)
}
