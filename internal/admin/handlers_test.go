package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sentrygate/gateway/internal/backend"
	"github.com/sentrygate/gateway/internal/concurrency"
	"github.com/sentrygate/gateway/internal/eventsink"
	"github.com/sentrygate/gateway/internal/scancache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func buildTestHandlers(t *testing.T, sinks ...eventsink.Sink) (*Handlers, *recordingSink) {
	t.Helper()

	cache, err := scancache.New(10, time.Minute)
	if err != nil {
		t.Fatalf("building cache: %v", err)
	}
	pool := backend.NewPool([]backend.Target{{Name: "primary", BaseURL: "http://127.0.0.1:0"}})
	recorder := &recordingSink{}
	sink := eventsink.NewMultiSink(append(sinks, recorder)...)

	h := New(concurrency.NewManager(2, 4), cache, pool, sink, func() []string {
		return []string{"PromptInjection", "NoCode"}
	})
	return h, recorder
}

// TestUpdateQueueObservedAtomicallyByStats covers testable invariant #8:
// admin/queue/update followed by queue/stats observes the new limits with
// no window in which a racing reader could see a partially-applied state.
func TestUpdateQueueObservedAtomicallyByStats(t *testing.T) {
	h, _ := buildTestHandlers(t)
	engine := gin.New()
	h.Register(engine)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	updateBody := `{"model":"llama3","parallel_limit":7,"queue_limit":9}`
	resp, err := http.Post(srv.URL+"/admin/queue/update", "application/json", strings.NewReader(updateBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updateStats concurrency.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updateStats))
	require.Equal(t, 7, updateStats.ParallelLimit)
	require.Equal(t, 9, updateStats.QueueLimit)

	statsResp, err := http.Get(srv.URL + "/queue/stats?model=llama3")
	require.NoError(t, err)
	defer statsResp.Body.Close()

	var stats concurrency.Stats
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
	require.Equal(t, 7, stats.ParallelLimit, "queue/stats should observe the new parallel limit")
	require.Equal(t, 9, stats.QueueLimit, "queue/stats should observe the new queue limit")
}

func TestResetQueueZeroesCountersWithoutDisturbingActive(t *testing.T) {
	h, _ := buildTestHandlers(t)

	ticket, err := h.Concurrency.Admit("llama3")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	guard, err := ticket.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer guard.Release()

	engine := gin.New()
	h.Register(engine)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/queue/reset", "application/json", strings.NewReader(`{"model":"llama3"}`))
	if err != nil {
		t.Fatalf("reset request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var stats concurrency.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding reset response: %v", err)
	}
	if stats.Processed != 0 || stats.Rejected != 0 {
		t.Fatalf("expected counters reset to zero, got %+v", stats)
	}
	if stats.Active != 1 {
		t.Fatalf("expected the held slot to remain active across a reset, got active=%d", stats.Active)
	}
}

func TestClearCacheEmitsAuditEvent(t *testing.T) {
	h, recorder := buildTestHandlers(t)
	engine := gin.New()
	h.Register(engine)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/cache/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("clear request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected exactly one audited mutation, got %d", len(recorder.events))
	}
	if recorder.events[0].Kind != eventsink.KindAdminMutation {
		t.Fatalf("expected KindAdminMutation, got %v", recorder.events[0].Kind)
	}
	if recorder.events[0].Attrs["action"] != "cache_clear" {
		t.Fatalf("expected action=cache_clear, got %v", recorder.events[0].Attrs["action"])
	}
}

func TestHealthReportsOK(t *testing.T) {
	h, _ := buildTestHandlers(t)
	engine := gin.New()
	h.Register(engine)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

type recordingSink struct {
	events []eventsink.Event
}

func (r *recordingSink) Emit(e eventsink.Event) {
	r.events = append(r.events, e)
}
