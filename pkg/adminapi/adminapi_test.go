package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskcomputer/pkg/config"
	"github.com/cuemby/taskcomputer/pkg/storage"
	"github.com/cuemby/taskcomputer/pkg/types"
)

// fakeComputer is a Computer double recording every call it receives.
type fakeComputer struct {
	progresses map[string]types.Progress

	quitCalled chan struct{}

	lastReconfigure config.ConfigDesc
	lastInBG        bool
	lastBenchmarks  bool
	reconfigureErr  error
}

func newFakeComputer() *fakeComputer {
	return &fakeComputer{
		progresses: map[string]types.Progress{},
		quitCalled: make(chan struct{}, 1),
	}
}

func (f *fakeComputer) GetProgresses() map[string]types.Progress { return f.progresses }

func (f *fakeComputer) Quit(ctx context.Context) {
	f.quitCalled <- struct{}{}
}

func (f *fakeComputer) ChangeConfig(ctx context.Context, desc config.ConfigDesc, inBackground, runBenchmarks bool) error {
	f.lastReconfigure = desc
	f.lastInBG = inBackground
	f.lastBenchmarks = runBenchmarks
	return f.reconfigureErr
}

// fakeStats is a StatsSource double returning a fixed snapshot.
type fakeStats struct {
	snapshot storage.StatsSnapshot
}

func (f *fakeStats) Snapshot() storage.StatsSnapshot { return f.snapshot }

func newTestServer(computer *fakeComputer, stats *fakeStats) *Server {
	return New("127.0.0.1:0", computer, stats, zerolog.Nop())
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleProgressReturnsComputerSnapshot(t *testing.T) {
	computer := newFakeComputer()
	computer.progresses["s1"] = types.Progress{SubtaskID: "s1", Fraction: 0.5}
	s := newTestServer(computer, &fakeStats{})

	rec := doRequest(s, http.MethodGet, "/api/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestHandleStatsReturnsSnapshot(t *testing.T) {
	stats := &fakeStats{snapshot: storage.StatsSnapshot{ComputedTasks: 3, TasksRequested: 5}}
	s := newTestServer(newFakeComputer(), stats)

	rec := doRequest(s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestHandleQuitTriggersComputerQuit(t *testing.T) {
	computer := newFakeComputer()
	s := newTestServer(computer, &fakeStats{})

	rec := doRequest(s, http.MethodPost, "/api/quit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-computer.quitCalled:
	case <-time.After(time.Second):
		t.Fatal("Quit was not called")
	}
}

func TestHandleReconfigureAppliesRequestedConfig(t *testing.T) {
	computer := newFakeComputer()
	s := newTestServer(computer, &fakeStats{})

	req := ReconfigureRequest{
		Config:        config.Default(),
		InBackground:  true,
		RunBenchmarks: true,
	}

	rec := doRequest(s, http.MethodPost, "/api/reconfigure", req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, config.Default(), computer.lastReconfigure)
	assert.True(t, computer.lastInBG)
	assert.True(t, computer.lastBenchmarks)
}

func TestHandleReconfigureRejectsMalformedBody(t *testing.T) {
	s := newTestServer(newFakeComputer(), &fakeStats{})

	req := httptest.NewRequest(http.MethodPost, "/api/reconfigure", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestHandleReconfigureReportsComputerError(t *testing.T) {
	computer := newFakeComputer()
	computer.reconfigureErr = assert.AnError
	s := newTestServer(computer, &fakeStats{})

	rec := doRequest(s, http.MethodPost, "/api/reconfigure", ReconfigureRequest{Config: config.Default()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetricsEndpointsAreMounted(t *testing.T) {
	s := newTestServer(newFakeComputer(), &fakeStats{})

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		rec := doRequest(s, http.MethodGet, path, nil)
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "path %s should be mounted", path)
	}
}
