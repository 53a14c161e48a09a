package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memexd/memexd/internal/config"
	"github.com/memexd/memexd/internal/memoryclient"
	"github.com/memexd/memexd/internal/observability"
	"github.com/memexd/memexd/internal/session"
)

func runServe(ctx context.Context, configPath string, watchConfig bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	comps := buildComponents(cfg)
	log := comps.logger.Slog()

	if comps.bus != nil {
		if err := comps.bus.Start(ctx); err != nil {
			return fmt.Errorf("start event bus: %w", err)
		}
		defer comps.bus.Close()
	}

	if watchConfig {
		watcher := config.NewWatcher(configPath, 500*time.Millisecond, log)
		if err := watcher.Start(ctx, func(next *config.Config) {
			log.Info("config reloaded", "path", configPath)
			comps.cfg = next
		}); err != nil {
			log.Warn("config watcher failed to start", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	if comps.events != nil {
		startEventRetentionSweep(ctx, comps.events, log)
	}

	startedAt := time.Now().UTC()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	if err := session.Write(cfg.Server.SessionName, session.State{
		SessionID: fmt.Sprintf("%d", os.Getpid()),
		Port:      listener.Addr().(*net.TCPAddr).Port,
		PID:       os.Getpid(),
		StartedAt: startedAt,
	}); err != nil {
		log.Warn("session state write failed", "error", err)
	}
	defer func() {
		if err := session.Remove(cfg.Server.SessionName); err != nil {
			log.Debug("session state remove failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz(startedAt))
	mux.HandleFunc("/v1/search", handleSearchProxy(comps))
	mux.HandleFunc("/v1/events", handleEventTimeline(comps))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	log.Info("memexd serve listening", "addr", addr)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", "error", err)
	}
	return nil
}

// eventRetention is how long a recorded event stays queryable through
// /v1/events before the sweep in startEventRetentionSweep evicts it. The
// in-memory store also caps itself at a fixed entry count (see
// buildComponents), so this mainly bounds how far back an operator can look
// rather than bounding memory.
const eventRetention = 24 * time.Hour

// startEventRetentionSweep periodically evicts events older than
// eventRetention from the in-memory timeline store, until ctx is done.
// Without this the store only shrinks via its own max-size eviction
// (observability.MemoryEventStore.evictOldest), which only fires once the
// store is nearly full.
func startEventRetentionSweep(ctx context.Context, store observability.EventStore, log *slog.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.Delete(eventRetention)
				if err != nil {
					log.Warn("event retention sweep failed", "error", err)
					continue
				}
				if n > 0 {
					log.Debug("event retention sweep evicted events", "count", n)
				}
			}
		}
	}()
}

func handleHealthz(startedAt time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"status":   "ok",
			"uptime_s": int(time.Since(startedAt).Seconds()),
		}
		data, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// handleEventTimeline serves the recorded event timeline for this server's
// lifetime (the event store is in-memory, not persisted), selected one of
// four ways: by run_id, session_id, a single event_id, or the most recent N
// events of a given type. ?format=text returns the human-readable
// rendering; the default is JSON.
func handleEventTimeline(comps *components) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if comps.events == nil {
			http.Error(w, "event timeline not available", http.StatusServiceUnavailable)
			return
		}

		q := r.URL.Query()
		var (
			events []*observability.Event
			err    error
		)
		switch {
		case q.Get("event_id") != "":
			var ev *observability.Event
			ev, err = comps.events.Get(q.Get("event_id"))
			if ev != nil {
				events = []*observability.Event{ev}
			}
		case q.Get("run_id") != "":
			events, err = comps.events.GetByRunID(q.Get("run_id"))
		case q.Get("session_id") != "":
			events, err = comps.events.GetBySessionID(q.Get("session_id"))
		case q.Get("type") != "":
			limit := 100
			if v, convErr := strconv.Atoi(q.Get("limit")); convErr == nil && v > 0 {
				limit = v
			}
			events, err = comps.events.GetByType(observability.EventType(q.Get("type")), limit)
		default:
			http.Error(w, "specify one of: run_id, session_id, event_id, type", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if len(events) == 0 {
			http.Error(w, "no matching events in this server's timeline", http.StatusNotFound)
			return
		}
		timeline := observability.BuildTimeline(events)

		if q.Get("format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprint(w, observability.FormatTimeline(timeline))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(timeline); err != nil {
			comps.logger.Slog().Warn("event timeline encode failed", "error", err)
		}
	}
}

// handleSearchProxy exposes the configured memory collaborator's search
// endpoint over the admin surface, so operators (and the web UI of a future
// consumer) can inspect what the gatekeeper would see without running a
// full backend invocation.
func handleSearchProxy(comps *components) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query().Get("q")
		if query == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}
		limit := 20
		matches, err := comps.memory.Search(r.Context(), memoryclient.SearchRequest{
			ProjectID: comps.cfg.ProjectID,
			Query:     query,
			Limit:     limit,
		})
		if err != nil {
			comps.metrics.RecordMemoryClientRequest("search", "error")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		comps.metrics.RecordMemoryClientRequest("search", "ok")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(matches); err != nil {
			comps.logger.Slog().Warn("search proxy encode failed", "error", err)
		}
	}
}
