package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PROMPT_COOLDOWN_HOURS", "")
	t.Setenv("PROMPT_MAX_PER_TURN", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, 12*time.Hour, PromptCooldown())
	assert.Equal(t, 1, PromptMaxPerTurn())
	assert.Equal(t, DriverSQLite, StoreDriver())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PROMPT_COOLDOWN_HOURS", "1.5")
	t.Setenv("PROMPT_MAX_PER_TURN", "0")
	t.Setenv("DATABASE_URL", "postgres://localhost/havi")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("OTEL_INSECURE", "true")

	assert.Equal(t, 90*time.Minute, PromptCooldown())
	assert.Equal(t, 0, PromptMaxPerTurn())
	assert.Equal(t, DriverPostgres, StoreDriver())
	assert.True(t, OTELInsecure())

	t.Setenv("STORE_DRIVER", "SQLite")
	assert.Equal(t, DriverSQLite, StoreDriver())
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
brackets:
  early_max_weeks: 6
policies:
  later:
    min_confidence: 0.6
`), 0o600))

	cfg, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Brackets.EarlyMaxWeeks)
	assert.Zero(t, cfg.Brackets.MidMaxWeeks)
	assert.Equal(t, 0.6, cfg.Policies[domain.AgeBracketLater].MinConfidence)

	_, err = LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
