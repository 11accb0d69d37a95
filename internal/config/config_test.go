package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "report_jobs", cfg.ReportJobsTopic)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 3, cfg.Jobs.MaxAttempts)
	require.Equal(t, 2*time.Hour, cfg.Jobs.ScheduledExpiry)
	require.Equal(t, time.Hour, cfg.Jobs.ManualExpiry)
	require.Equal(t, 5, cfg.Scheduler.RetentionKeep)
	require.Equal(t, time.UTC, cfg.Timezone)
	require.Equal(t, time.Minute, cfg.DLQ.BaseDelay)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("REPORT_TIMEZONE", "Europe/Berlin")
	t.Setenv("GENERATION_TIMEOUT", "90s")
	t.Setenv("LOG_FORMAT", "CONSOLE")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 8, cfg.WorkerConcurrency)
	require.Equal(t, "Europe/Berlin", cfg.Timezone.String())
	require.Equal(t, 90*time.Second, cfg.Generation.Timeout)
	require.Equal(t, "console", cfg.LogFormat)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_address: \":9000\"\nretention_keep: 9\nreport_jobs_topic: jobs-from-file\n"), 0o600))
	t.Setenv("REPORT_JOBS_TOPIC", "jobs-from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.HTTPAddress)
	require.Equal(t, 9, cfg.Scheduler.RetentionKeep)
	require.Equal(t, "jobs-from-env", cfg.ReportJobsTopic)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REPORT_TIMEZONE", "Mars/Olympus")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	t.Setenv("RETENTION_KEEP", "0")

	_, err := Load()
	require.Error(t, err)
	require.ErrorContains(t, err, "REPORT_TIMEZONE")
	require.ErrorContains(t, err, "OUTBOX_POLL_INTERVAL")
	require.ErrorContains(t, err, "RETENTION_KEEP")
}

func TestSplitAndTrim(t *testing.T) {
	require.Empty(t, splitAndTrim(" , "))
	require.Equal(t, []string{"x"}, splitAndTrim("x"))
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
