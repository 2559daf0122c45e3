package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/repo"
)

func TestInitCreatesConfigAndStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ws, res, err := Init(ctx, Options{Dir: dir, Actor: "tester"}, "alpha", false)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	assert.True(t, res.ConfigCreated)
	assert.FileExists(t, res.ConfigPath)
	assert.FileExists(t, res.DatabasePath)
	assert.Equal(t, "alpha", ws.Config.Project.Name)
	assert.Equal(t, "tester", ws.Engine.Actor)

	personas, err := ws.Engine.ListPersonas(ctx, repo.PersonaFilters{})
	require.NoError(t, err)
	assert.NotEmpty(t, personas)
	require.NoError(t, ws.Close())

	ws2, res2, err := Init(ctx, Options{Dir: dir}, "beta", false)
	require.NoError(t, err)
	t.Cleanup(func() { ws2.Close() })
	assert.False(t, res2.ConfigCreated)
	assert.Equal(t, "alpha", ws2.Config.Project.Name)
}

func TestInitForceRewritesConfig(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ws, _, err := Init(ctx, Options{Dir: dir}, "alpha", false)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	ws, res, err := Init(ctx, Options{Dir: dir}, "gamma", true)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	assert.True(t, res.ConfigCreated)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "gamma", cfg.Project.Name)
}

func TestOpenRequiresConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), Options{Dir: dir, RequireConfig: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s9 init")

	ws, err := Open(context.Background(), Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	_, statErr := os.Stat(config.Path(dir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default("alpha")
	require.NoError(t, config.Write(dir, cfg))
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("project:\n  name: \"\"\n"), 0o644))

	_, err := Open(context.Background(), Options{Dir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project.name")
}
