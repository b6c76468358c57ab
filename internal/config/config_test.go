package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kettleofketchup/draftforge/internal/models"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8081", cfg.Port)
	require.NoError(t, cfg.Draft.Validate())
}

func TestDefaultPatternIsBalanced(t *testing.T) {
	pattern := DefaultPattern()
	require.Len(t, pattern, 20)

	counts := map[bool]map[models.ActionType]int{
		true:  {},
		false: {},
	}
	for _, step := range pattern {
		counts[step.First][step.Action]++
	}

	// Five bans and five picks per side.
	for _, first := range []bool{true, false} {
		assert.Equal(t, 5, counts[first][models.ActionTypeBan])
		assert.Equal(t, 5, counts[first][models.ActionTypePick])
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Equal(t, Default().Draft.GraceTimeMs, cfg.Draft.GraceTimeMs)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
log_level: debug
nats:
  enabled: true
  url: nats://bus:4222
draft:
  grace_time_ms: 10000
  reserve_time_ms: 60000
  resume_countdown_ms: 2000
  roll_duration_ms: 4000
  pattern:
    - {first: true, action: PICK}
    - {first: false, action: PICK}
`), 0o600))

	t.Setenv("GATEWAY_PORT", "9999")
	t.Setenv("NATS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port, "env wins over file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, int64(10000), cfg.Draft.GraceTimeMs)
	require.Len(t, cfg.Draft.Pattern, 2)
}

func TestLoadRejectsInvalidDraftSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
draft:
  grace_time_ms: 0
  reserve_time_ms: 0
  pattern:
    - {first: true, action: PICK}
`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
