package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/metrics"
	"github.com/deusflow/spectrumpost/internal/storage"
)

func ledgerConfig(t *testing.T) (cfgPath, ledgerPath string) {
	t.Helper()
	dir := t.TempDir()
	ledgerPath = filepath.Join(dir, "published_urls.json")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := "ledger:\n  backend: file\n  path: " + ledgerPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, ledgerPath
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLedgerCommands(t *testing.T) {
	cfg, ledgerPath := ledgerConfig(t)

	out, err := execute(t, "", "--config", cfg, "ledger", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "empty")

	out, err = execute(t, "", "--config", cfg, "ledger", "add", "https://spectrum.example/robots")
	require.NoError(t, err)
	assert.Contains(t, out, "Added: https://spectrum.example/robots")

	out, err = execute(t, "", "--config", cfg, "ledger", "add", "https://spectrum.example/robots")
	require.NoError(t, err)
	assert.Contains(t, out, "Already in the list")

	_, err = execute(t, "", "--config", cfg, "ledger", "add", "https://spectrum.example/chips")
	require.NoError(t, err)

	out, err = execute(t, "", "--config", cfg, "ledger", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "Published links: 2")

	out, err = execute(t, "", "--config", cfg, "ledger", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "https://spectrum.example/robots")
	assert.Contains(t, out, "https://spectrum.example/chips")

	out, err = execute(t, "", "--config", cfg, "ledger", "search", "CHIPS")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 links")
	assert.NotContains(t, out, "robots")

	out, err = execute(t, "", "--config", cfg, "ledger", "remove", "https://spectrum.example/absent")
	require.NoError(t, err)
	assert.Contains(t, out, "Not in the list")

	out, err = execute(t, "", "--config", cfg, "ledger", "remove", "https://spectrum.example/chips")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	l := storage.NewFileLedger(ledgerPath)
	require.NoError(t, l.Load(context.Background()))
	ids, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://spectrum.example/robots"}, ids)
}

func TestLedgerClearAsksForConfirmation(t *testing.T) {
	cfg, _ := ledgerConfig(t)
	_, err := execute(t, "", "--config", cfg, "ledger", "add", "https://spectrum.example/a")
	require.NoError(t, err)

	out, err := execute(t, "n\n", "--config", cfg, "ledger", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")

	out, err = execute(t, "", "--config", cfg, "ledger", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "Published links: 1")

	out, err = execute(t, "yes\n", "--config", cfg, "ledger", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 links")

	_, err = execute(t, "", "--config", cfg, "ledger", "add", "https://spectrum.example/b")
	require.NoError(t, err)
	out, err = execute(t, "", "--config", cfg, "ledger", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 links")

	out, err = execute(t, "", "--config", cfg, "ledger", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "already empty")
}

func TestLedgerArgsValidated(t *testing.T) {
	cfg, _ := ledgerConfig(t)
	_, err := execute(t, "", "--config", cfg, "ledger", "add")
	assert.Error(t, err)
}

func TestRunRequiresCredentials(t *testing.T) {
	cfg, _ := ledgerConfig(t)
	_, err := execute(t, "", "--config", cfg, "run", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestMonitorRouter(t *testing.T) {
	m := metrics.New()
	router := newMonitorRouter(m, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.ObserveRun("failed", time.Second, "delivery failed")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "delivery failed", body["last_error"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spectrumpost_runs_total{outcome="failed"} 1`)
}

func TestScheduledJobSkipsOverlappingRun(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	tick := func() {
		runs.Add(1)
		started <- struct{}{}
		<-release
	}
	_, job, err := newScheduler("@every 1h", time.UTC, tick, cronLogger{zap.NewNop()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run()
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	<-done
	go job.Run()
	<-started
	assert.Equal(t, int32(2), runs.Load())
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, _, err := newScheduler("not a schedule", time.UTC, func() {}, cronLogger{zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}
