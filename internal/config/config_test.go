package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "production", cfg.Compliance.Mode)
	assert.Equal(t, 3, cfg.Compliance.Judges)
	assert.Equal(t, 10*time.Second, cfg.Compliance.JudgeTimeout)
	assert.InDelta(t, 0.995, cfg.Scoring.DecayRate, 1e-9)
	assert.InDelta(t, 1.0, cfg.Scoring.RecencyWeight+cfg.Scoring.ImportanceWeight+cfg.Scoring.RelevanceWeight, 1e-9)
	assert.InDelta(t, 7.0, cfg.Learning.SuccessThreshold, 1e-9)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: chromem
  path: /tmp/guidanced
compliance:
  mode: training
  judges: 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chromem", cfg.Store.Backend)
	assert.Equal(t, "/tmp/guidanced", cfg.Store.Path)
	assert.Equal(t, "training", cfg.Compliance.Mode)
	assert.Equal(t, 5, cfg.Compliance.Judges)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8420, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GUIDANCED_RETRIEVAL_LIMIT", "8")
	t.Setenv("GUIDANCED_SCORING_DECAY_RATE", "0.99")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.Limit)
	assert.InDelta(t, 0.99, cfg.Scoring.DecayRate, 1e-9)
}

func TestValidate_MalformedWeights(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Scoring.RecencyWeight = 0.5
	cfg.Scoring.ImportanceWeight = 0.5
	cfg.Scoring.RelevanceWeight = 0.5
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestValidate_ThresholdRange(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Compliance.ProductionThreshold = 1.2
	assert.Error(t, cfg.Validate())
}

func TestValidate_BadMode(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Compliance.Mode = "canary"
	assert.Error(t, cfg.Validate())
}

func TestValidate_BadBackend(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Store.Backend = "qdrant"
	assert.Error(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
