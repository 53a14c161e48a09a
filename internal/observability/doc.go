// Package observability provides monitoring and debugging capabilities for
// memexd through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The package implements three pillars of observability:
//
//  1. Metrics - run, gatekeeper, and executor counters via Prometheus
//  2. Logging - structured logs with sensitive data redaction
//  3. Tracing - distributed spans around supervised backend runs
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Run outcomes and duration by backend
//   - Gatekeeper write-candidate decisions
//   - Tool policy blocks
//   - Ring buffer tee drops under backpressure
//   - Layered executor per-layer duration and task outcomes
//   - Memory collaborator request outcomes
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordRun("codex", "ok", time.Since(start).Seconds())
//	metrics.RecordGatekeeperDecision(true)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic run/session ID correlation from context
//   - Sensitive data redaction (API keys, secrets, bearer tokens)
//   - JSON output for production, text for development
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRunID(ctx, runID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//	logger.Info(ctx, "run started", "backend", backend)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a run across components:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "memexd",
//	    Endpoint:    "localhost:4317",
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceSupervisorSpawn(ctx, "codex", runID)
//	defer span.End()
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys and bearer/JWT tokens
//   - Passwords and secrets
//   - Custom patterns via configuration
package observability
