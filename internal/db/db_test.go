package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir))
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.PingContext(context.Background()))
	_, err = os.Stat(Path(dir))
	require.NoError(t, err)
	assert.True(t, Exists(dir))

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestConstraintClassification(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TABLE parent(id TEXT PRIMARY KEY); CREATE TABLE child(id TEXT PRIMARY KEY, parent_id TEXT REFERENCES parent(id))`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO parent(id) VALUES ('a')`)
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO parent(id) VALUES ('a')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsBusy(err))

	_, err = conn.Exec(`INSERT INTO child(id, parent_id) VALUES ('c', 'missing')`)
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
}

func TestIsBusyFallsBackToMessage(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(fmt.Errorf("exec: %w", errors.New("database is locked (5) (SQLITE_BUSY)"))))
	assert.False(t, IsBusy(errors.New("no such table: tasks")))
}
