package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("site-nine")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "site-nine", cfg.Project.Name)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout())
	assert.Equal(t, 2, cfg.BusyRetries())
	assert.Equal(t, DefaultBasePath, cfg.Server.BasePath)
}

func TestFromYAMLValidation(t *testing.T) {
	cases := map[string]string{
		"missing name":   "project:\n  type: software\n",
		"bad timeout":    "project:\n  name: x\nstore:\n  busy_timeout: soon\n",
		"too many tries": "project:\n  name: x\nstore:\n  busy_retries: 99\n",
		"bad base path":  "project:\n  name: x\nserver:\n  base_path: v1\n",
		"bad persona":    "project:\n  name: x\npersonas:\n  - name: Loki\n    role: Operator\n    mythology: Norse\n",
		"unknown role":   "project:\n  name: x\npersonas:\n  - name: loki\n    role: Trickster\n    mythology: Norse\n",
		"webhook scheme": "project:\n  name: x\nwebhooks:\n  - url: ftp://example.com\n",
		"webhook url":    "project:\n  name: x\nwebhooks:\n  - events: [task.created]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestBusyRetriesZeroDisables(t *testing.T) {
	cfg, err := FromYAML([]byte("project:\n  name: x\nstore:\n  busy_retries: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.BusyRetries())
	assert.Equal(t, time.Duration(0), cfg.BusyTimeout())
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), cfg.Project.Name)

	cfg.Project.Description = "agents at work"
	require.NoError(t, Write(dir, cfg))
	_, err = os.Stat(Path(dir))
	require.NoError(t, err)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "agents at work", loaded.Project.Description)
}

func TestAllPersonasMergesOverrides(t *testing.T) {
	cfg := Default("x")
	builtin, err := cfg.AllPersonas()
	require.NoError(t, err)
	require.NotEmpty(t, builtin)
	roles := map[string]int{}
	for _, p := range builtin {
		require.NoError(t, p.validate())
		roles[p.Role]++
	}
	assert.Len(t, roles, 9)

	cfg.Personas = []PersonaSeed{
		{Name: "zeus", Role: "Administrator", Mythology: "Greek", Description: "overridden"},
		{Name: "loki", Role: "Operator", Mythology: "Norse"},
	}
	merged, err := cfg.AllPersonas()
	require.NoError(t, err)
	assert.Len(t, merged, len(builtin)+1)
	assert.Equal(t, "overridden", merged[0].Description)
	assert.Equal(t, "loki", merged[len(merged)-1].Name)
}

func TestWebhookActive(t *testing.T) {
	cfg, err := FromYAML([]byte("project:\n  name: x\nwebhooks:\n  - url: http://localhost:9000/hook\n    events: [epic.aborted]\n  - url: https://example.com\n    enabled: false\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 2)
	assert.True(t, cfg.Webhooks[0].Active())
	assert.False(t, cfg.Webhooks[1].Active())
}
