package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
controller:
  url: https://console.lan
  username: admin
  site: home
interval: 15s
thresholds:
  degradedAfterFails: 3
  downAfterFails: 6
probe:
  targets: [https://a.test]
audit:
  path: /tmp/events.jsonl
  mirror: sqlite
  dsn: /tmp/audit.db
`), 0o644))

	t.Setenv("UNIFI_PASSWORD", "secret")
	t.Setenv("POLL_INTERVAL", "20")
	t.Setenv("PROBE_TARGETS", "https://b.test, https://c.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://console.lan", cfg.Controller.BaseURL)
	assert.Equal(t, "secret", cfg.Controller.Password)
	assert.Equal(t, "home", cfg.Controller.Site)
	assert.Equal(t, 20*time.Second, cfg.Interval)
	assert.Equal(t, []string{"https://b.test", "https://c.test"}, cfg.Probe.Targets)
	assert.Equal(t, 3, cfg.Thresholds.DegradedAfterFails)
	assert.Equal(t, 6, cfg.Thresholds.DownAfterFails)
	assert.Equal(t, 2, cfg.Thresholds.OKAfterSuccesses)
	assert.Equal(t, "sqlite", cfg.Audit.Mirror)
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	require.NoError(t, c.applyEnv(envMap(map[string]string{"UNIFI_URL": "https://u.lan"})))
	c.applyDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 10*time.Second, c.Interval)
	assert.Equal(t, 8*time.Second, c.CycleTimeout)
	assert.Equal(t, 2*time.Second, c.Probe.Timeout)
	assert.Equal(t, DefaultProbeTargets, c.Probe.Targets)
	assert.Equal(t, 500, c.HistorySize)
	assert.Equal(t, "default", c.Controller.Site)
	assert.Equal(t, 8443, c.Controller.LegacyPort)
	assert.Equal(t, ":8080", c.Listen)
}

func TestApplyEnv_Errors(t *testing.T) {
	c := &Config{}
	assert.Error(t, c.applyEnv(envMap(map[string]string{"UNIFI_INSECURE": "maybe"})))
	assert.Error(t, c.applyEnv(envMap(map[string]string{"POLL_INTERVAL": "soon"})))

	require.NoError(t, c.applyEnv(envMap(map[string]string{"UNIFI_INSECURE": "true", "POLL_INTERVAL": "1m"})))
	assert.True(t, c.Controller.InsecureTLS)
	assert.Equal(t, time.Minute, c.Interval)
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.applyDefaults()
	c.Thresholds.DegradedAfterFails = 5
	c.Thresholds.DownAfterFails = 2
	c.Audit.Mirror = "postgres"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller url is required")
	assert.Contains(t, err.Error(), "exceeds downAfterFails")
	assert.Contains(t, err.Error(), `unknown audit mirror "postgres"`)
}

func TestValidate_ProbeBudget(t *testing.T) {
	c := &Config{}
	c.Controller.BaseURL = "https://u.lan"
	c.applyDefaults()
	require.NoError(t, c.Validate())

	c.Probe.Timeout = 3 * time.Second
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe budget 9s (3 targets x 3s) exceeds cycle timeout 8s")

	c.CycleTimeout = 9 * time.Second
	assert.NoError(t, c.Validate())
}
