package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Scan.Interval)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, 5*time.Second, cfg.Scan.ProviderTimeout)
	assert.Equal(t, "alert-events", cfg.Outbox.Channel)

	threshold, err := cfg.Alerting.DoctorThreshold()
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, threshold)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ALERTS_DB_HOST", "db.internal")
	t.Setenv("ALERTS_DB_PORT", "6543")
	t.Setenv("ALERTS_JWT_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, "database:\n  host: localhost\n"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal port=6543")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := Load(writeConfig(t, "scan:\n  workers: 0\nalerting:\n  doctor_severity_threshold: urgent\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan.workers must be positive")
	assert.Contains(t, err.Error(), "doctor_severity_threshold")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
