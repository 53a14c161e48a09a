package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memexd/memexd/internal/observability"
)

func testComponents(t *testing.T) *components {
	t.Helper()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "json"})
	store := observability.NewMemoryEventStore(100)
	recorder := observability.NewEventRecorder(store, logger)
	return &components{
		logger:   logger,
		recorder: recorder,
		events:   store,
	}
}

func TestHandleEventTimeline_RequiresASelector(t *testing.T) {
	comps := testComponents(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	w := httptest.NewRecorder()
	handleEventTimeline(comps)(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with no selector, got %d", w.Code)
	}
}

func TestHandleEventTimeline_ByRunIDReturnsTimeline(t *testing.T) {
	comps := testComponents(t)
	comps.recordRunLifecycle(context.Background(), "run-1", nil, 50, true, []string{"top1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/events?run_id=run-1", nil)
	w := httptest.NewRecorder()
	handleEventTimeline(comps)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var timeline observability.Timeline
	if err := json.Unmarshal(w.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if timeline.RunID != "run-1" {
		t.Fatalf("expected run_id run-1, got %q", timeline.RunID)
	}
	if timeline.Summary.TotalEvents == 0 {
		t.Fatal("expected at least one event in the timeline")
	}
}

func TestHandleEventTimeline_UnknownRunIDReturns404(t *testing.T) {
	comps := testComponents(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/events?run_id=nope", nil)
	w := httptest.NewRecorder()
	handleEventTimeline(comps)(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleEventTimeline_ByTypeFiltersEvents(t *testing.T) {
	comps := testComponents(t)
	comps.recordRunLifecycle(context.Background(), "run-a", nil, 10, false, nil)
	comps.recordRunLifecycle(context.Background(), "run-b", nil, 10, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/events?type=run.start&limit=10", nil)
	w := httptest.NewRecorder()
	handleEventTimeline(comps)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var timeline observability.Timeline
	if err := json.Unmarshal(w.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if timeline.Summary.TotalEvents != 2 {
		t.Fatalf("expected 2 run.start events, got %d", timeline.Summary.TotalEvents)
	}
}

func TestHandleEventTimeline_TextFormat(t *testing.T) {
	comps := testComponents(t)
	comps.recordRunLifecycle(context.Background(), "run-1", nil, 50, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/events?run_id=run-1&format=text", nil)
	w := httptest.NewRecorder()
	handleEventTimeline(comps)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
}

func TestStartEventRetentionSweep_StopsOnContextCancel(t *testing.T) {
	comps := testComponents(t)
	ctx, cancel := context.WithCancel(context.Background())
	startEventRetentionSweep(ctx, comps.events, comps.logger.Slog())
	cancel()
	time.Sleep(10 * time.Millisecond)
}
