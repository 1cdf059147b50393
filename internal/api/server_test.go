package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/events"
	"github.com/phrazzld/alpipe/internal/monitor"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/task"
)

type fixedSource struct {
	snap monitor.Snapshot
	ok   bool
}

func (s fixedSource) Latest() (monitor.Snapshot, bool) { return s.snap, s.ok }

type fixedHistory struct {
	records []domain.Status
	err     error
	limits  []int
}

func (h *fixedHistory) History(_ context.Context, limit int) ([]domain.Status, error) {
	h.limits = append(h.limits, limit)
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.records) {
		return h.records[:limit], nil
	}
	return h.records, nil
}

func TestHealth(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	router := NewRouter(fixedSource{}, prometheus.NewRegistry(), log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestStatusBeforeFirstTick(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	router := NewRouter(fixedSource{}, prometheus.NewRegistry(), log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no tick has completed yet", body["error"])
	assert.NotEmpty(t, body["trace_id"])
}

func TestStatusWithSnapshot(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	status := domain.NewStatus(2, 1)
	src := fixedSource{ok: true, snap: monitor.Snapshot{
		Phase:  events.PhaseSteadyState,
		Tick:   3,
		Status: *status,
		Queues: []task.Report{{Stage: "sampler", Queued: 2, Size: 2}},
	}}
	router := NewRouter(src, prometheus.NewRegistry(), log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "steady_state", body["phase"])
	assert.EqualValues(t, 1, body["status"].(map[string]any)["current_model_id"])
	assert.Len(t, body["queues"], 1)
}

func TestMetricsEndpoint(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	mon := monitor.New(log)
	event, err := events.NewEvent(events.TypeTickCompleted, events.TickCompleted{
		Phase:  events.PhaseBootstrap,
		Status: *domain.NewStatus(0, 0),
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, mon.HandleEvent(context.Background(), event))

	router := NewRouter(mon, mon.Registry(), log)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alpipe_ticks_total 1")
	assert.Contains(t, w.Body.String(), "alpipe_current_model_id -1")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, NewRouter(fixedSource{}, prometheus.NewRegistry(), log), log)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeInvalidAddress(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	err := Serve(context.Background(), "not-an-address", http.NotFoundHandler(), log)
	assert.Error(t, err)
}

func TestStatusHistory(t *testing.T) {
	newer := domain.NewStatus(3, 2)
	newer.MoleculeID = 40
	older := domain.NewStatus(2, 1)
	older.MoleculeID = 20

	tests := []struct {
		name       string
		target     string
		source     *fixedHistory
		wantCode   int
		wantLimit  int
		wantRecent int
	}{
		{
			name:       "default limit",
			target:     "/status/history",
			source:     &fixedHistory{records: []domain.Status{*newer, *older}},
			wantCode:   http.StatusOK,
			wantLimit:  50,
			wantRecent: 40,
		},
		{
			name:       "explicit limit",
			target:     "/status/history?limit=1",
			source:     &fixedHistory{records: []domain.Status{*newer, *older}},
			wantCode:   http.StatusOK,
			wantLimit:  1,
			wantRecent: 40,
		},
		{
			name:     "limit out of range",
			target:   "/status/history?limit=5000",
			source:   &fixedHistory{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "limit not a number",
			target:   "/status/history?limit=all",
			source:   &fixedHistory{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "store failure",
			target:    "/status/history",
			source:    &fixedHistory{err: errors.New("connection refused")},
			wantCode:  http.StatusInternalServerError,
			wantLimit: 50,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log, _ := logger.GetTestLogger(t)
			router := NewRouter(fixedSource{}, prometheus.NewRegistry(), log, WithHistory(tc.source))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.target, nil))

			assert.Equal(t, tc.wantCode, w.Code)
			if tc.wantLimit > 0 {
				assert.Equal(t, []int{tc.wantLimit}, tc.source.limits)
			} else {
				assert.Empty(t, tc.source.limits)
			}
			if tc.wantCode != http.StatusOK {
				assert.NotContains(t, w.Body.String(), "connection refused")
				return
			}
			var history []domain.Status
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
			require.NotEmpty(t, history)
			assert.Equal(t, tc.wantRecent, history[0].MoleculeID)
		})
	}
}

func TestStatusHistoryNotServedWithoutSource(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	router := NewRouter(fixedSource{}, prometheus.NewRegistry(), log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/history", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
