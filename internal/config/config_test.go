package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2.5, cfg.Reference.ZoneCenter.Height)
	assert.Equal(t, 0.2717, cfg.Models.Fastball.AvgWhiffRate)
	assert.Equal(t, 0.4273, cfg.Models.Breaking.AvgWhiffRate)
	assert.Equal(t, 0.4239, cfg.Models.Offspeed.AvgWhiffRate)
	assert.Equal(t, "D1", cfg.Batch.Level)
	assert.Equal(t, "High", cfg.Batch.Confidence)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database:
  path: /tmp/sp.db
models:
  breaking:
    path: /models/bb.json
batch:
  workers: 12
schedule:
  interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sp.db", cfg.Database.Path)
	assert.Equal(t, "/models/bb.json", cfg.Models.Breaking.Path)
	assert.Equal(t, 0.4273, cfg.Models.Breaking.AvgWhiffRate, "unset fields keep defaults")
	assert.Equal(t, 12, cfg.Batch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Schedule.ParseInterval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STUFFPLUS_DB_PATH", "/env/sp.db")
	t.Setenv("STUFFPLUS_PORT", "9090")
	t.Setenv("STUFFPLUS_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/sp.db", cfg.Database.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Alerts.Slack.Enabled)

	t.Setenv("STUFFPLUS_PORT", "eighty")
	_, err = Load("")
	assert.Error(t, err)
}

func TestParseIntervalFallback(t *testing.T) {
	assert.Equal(t, 5*time.Minute, ScheduleConfig{Interval: "soon"}.ParseInterval())
}

func TestParseSettle(t *testing.T) {
	tests := []struct {
		name string
		cfg  ScheduleConfig
		want time.Duration
	}{
		{name: "unset follows interval", cfg: ScheduleConfig{Interval: "2m"}, want: 2 * time.Minute},
		{name: "invalid follows interval", cfg: ScheduleConfig{Interval: "2m", Settle: "later"}, want: 2 * time.Minute},
		{name: "negative follows interval", cfg: ScheduleConfig{Interval: "2m", Settle: "-1s"}, want: 2 * time.Minute},
		{name: "explicit", cfg: ScheduleConfig{Interval: "2m", Settle: "45s"}, want: 45 * time.Second},
		{name: "zero disables", cfg: ScheduleConfig{Interval: "2m", Settle: "0s"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ParseSettle())
		})
	}
}
