package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casesync/pkg/config"
	"casesync/pkg/logger"
	"casesync/pkg/metrics"
	"casesync/pkg/models"
)

// fakeEngine records which engine operations the server invoked
type fakeEngine struct {
	fullSync chan struct{}
	resume   chan struct{}
	stopped  bool

	current    *models.RunStatusInfo
	currentErr error

	statuses map[string]*models.RunStatusInfo
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		fullSync:   make(chan struct{}, 1),
		resume:     make(chan struct{}, 1),
		currentErr: context.Canceled,
		statuses:   make(map[string]*models.RunStatusInfo),
	}
}

func (f *fakeEngine) RunFullSync(ctx context.Context) (*models.Report, error) {
	f.fullSync <- struct{}{}
	return &models.Report{Status: models.StatusCompleted}, nil
}

func (f *fakeEngine) Resume(ctx context.Context) (*models.Report, error) {
	f.resume <- struct{}{}
	return &models.Report{Status: models.StatusCompleted}, nil
}

func (f *fakeEngine) RequestStop() {
	f.stopped = true
}

func (f *fakeEngine) Status(ctx context.Context, runID string) (*models.RunStatusInfo, error) {
	info, ok := f.statuses[runID]
	if !ok {
		return nil, context.Canceled
	}
	return info, nil
}

func (f *fakeEngine) CurrentStatus(ctx context.Context) (*models.RunStatusInfo, error) {
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	return f.current, nil
}

func newTestServer(engine SyncEngine) *Server {
	cfg := config.DefaultConfig()
	cfg.Server.TriggerSecret = "s3cret"
	return New(cfg, engine, metrics.New(), logger.NewTestLogger())
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("expected engine invocation")
	}
}

func TestTriggerRequiresSecret(t *testing.T) {
	engine := newFakeEngine()
	srv := httptest.NewServer(newTestServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sync", nil)
	req.Header.Set("X-Sync-Secret", "wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	select {
	case <-engine.fullSync:
		t.Fatal("engine must not run without a valid secret")
	default:
	}
}

func TestTriggerStartsFullSync(t *testing.T) {
	engine := newFakeEngine()
	srv := httptest.NewServer(newTestServer(engine).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sync", nil)
	req.Header.Set("X-Sync-Secret", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "full", body["mode"])

	waitSignal(t, engine.fullSync)
}

func TestTriggerResumesPausedRun(t *testing.T) {
	engine := newFakeEngine()
	engine.currentErr = nil
	engine.current = &models.RunStatusInfo{
		RunID:  "run-1",
		Status: models.StatusPaused,
		Stage:  models.StageCases,
	}
	srv := httptest.NewServer(newTestServer(engine).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sync", nil)
	req.Header.Set("X-Sync-Secret", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "resume", body["mode"])

	waitSignal(t, engine.resume)
}

func TestTriggerDisabledWithoutConfiguredSecret(t *testing.T) {
	engine := newFakeEngine()
	cfg := config.DefaultConfig()
	cfg.Server.TriggerSecret = ""
	srv := httptest.NewServer(New(cfg, engine, nil, logger.NewTestLogger()).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sync", nil)
	req.Header.Set("X-Sync-Secret", "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// An empty configured secret never matches, even an empty header
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStopEndpoint(t *testing.T) {
	engine := newFakeEngine()
	srv := httptest.NewServer(newTestServer(engine).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sync/stop", nil)
	req.Header.Set("X-Sync-Secret", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, engine.stopped)
}

func TestRunStatusEndpoint(t *testing.T) {
	engine := newFakeEngine()
	engine.statuses["run-9"] = &models.RunStatusInfo{
		RunID:             "run-9",
		Stage:             models.StageCases,
		Status:            models.StatusRunning,
		OverallPercentage: 60,
	}
	srv := httptest.NewServer(newTestServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs/run-9")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info models.RunStatusInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "run-9", info.RunID)
	assert.Equal(t, models.StatusRunning, info.Status)
	assert.Equal(t, float64(60), info.OverallPercentage)

	missing, err := http.Get(srv.URL + "/api/v1/runs/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	engine := newFakeEngine()
	srv := httptest.NewServer(newTestServer(engine).Handler())
	defer srv.Close()

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
