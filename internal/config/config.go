// Package config loads and validates memexd's configuration tree: strict
// YAML/JSON5 decoding with $include resolution and ${VAR} expansion, wired
// to every component's own Config type.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/memexd/memexd/internal/candidate"
	"github.com/memexd/memexd/internal/eventbus"
	"github.com/memexd/memexd/internal/executor"
	"github.com/memexd/memexd/internal/gatekeeper"
	"github.com/memexd/memexd/internal/memoryclient"
	"github.com/memexd/memexd/internal/observability"
	"github.com/memexd/memexd/internal/policy"
	"github.com/memexd/memexd/internal/supervisor"
)

// Config is the root configuration tree for memexd.
type Config struct {
	Version    int                       `yaml:"version"`
	ProjectID  string                    `yaml:"project_id"`
	Server     ServerConfig              `yaml:"server"`
	Backend    BackendConfig             `yaml:"backend"`
	FileCache  FileCacheConfig           `yaml:"file_cache"`
	EventBus   eventbus.Config           `yaml:"event_bus"`
	Supervisor supervisor.Config         `yaml:"supervisor"`
	Gatekeeper gatekeeper.Config         `yaml:"gatekeeper"`
	Candidate  candidate.Config          `yaml:"candidate"`
	Memory     memoryclient.Config       `yaml:"memory"`
	Executor   executor.Config           `yaml:"executor"`
	ToolPolicy policy.Config             `yaml:"tool_policy"`
	Logging    observability.LogConfig   `yaml:"logging"`
	Tracing    observability.TraceConfig `yaml:"tracing"`
}

// ServerConfig configures the `memexd serve` HTTP admin surface: health,
// graceful shutdown, and the memory search-proxy endpoint.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
	// SessionName identifies the server's session-state file under
	// ~/.memex/servers/<name>.state.
	SessionName string `yaml:"session_name"`
}

// BackendConfig selects the default backend CLI and its argument dialect.
type BackendConfig struct {
	Program      string   `yaml:"program"`
	BaseArgs     []string `yaml:"base_args"`
	Model        string   `yaml:"model"`
	StreamFormat string   `yaml:"stream_format"` // "text" | "jsonl"
}

// FileCacheConfig configures the layered executor's file-content cache.
type FileCacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// DefaultConfig wires every component's own defaults together.
func DefaultConfig() Config {
	return Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:        "127.0.0.1",
			HTTPPort:    8765,
			MetricsPort: 9765,
			SessionName: "default",
		},
		Backend: BackendConfig{
			Program:      "codex",
			StreamFormat: "jsonl",
		},
		FileCache:  FileCacheConfig{MaxEntries: 256},
		EventBus:   eventbus.DefaultConfig(),
		Supervisor: supervisor.DefaultConfig(),
		Gatekeeper: gatekeeper.DefaultConfig(),
		Candidate:  candidate.DefaultConfig(),
		Memory: memoryclient.Config{
			Timeout:  10 * time.Second,
			AuthMode: "none",
		},
		Executor:   executor.DefaultConfig(),
		ToolPolicy: policy.DefaultConfig(),
		Logging: observability.LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: observability.TraceConfig{
			ServiceName:  "memexd",
			SamplingRate: 1.0,
		},
	}
}

// Load reads, resolves $include directives in, expands ${VAR} references
// in, and strictly decodes the configuration file at path, then applies
// defaults and env overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = def.Version
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = def.Server.HTTPPort
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = def.Server.MetricsPort
	}
	if cfg.Server.SessionName == "" {
		cfg.Server.SessionName = def.Server.SessionName
	}

	if cfg.Backend.Program == "" {
		cfg.Backend.Program = def.Backend.Program
	}
	if cfg.Backend.StreamFormat == "" {
		cfg.Backend.StreamFormat = def.Backend.StreamFormat
	}

	if cfg.FileCache.MaxEntries <= 0 {
		cfg.FileCache.MaxEntries = def.FileCache.MaxEntries
	}

	if cfg.EventBus.Path == "" {
		cfg.EventBus.Path = def.EventBus.Path
	}
	if cfg.EventBus.ChannelCapacity == 0 {
		cfg.EventBus.ChannelCapacity = def.EventBus.ChannelCapacity
	}
	if cfg.EventBus.FlushEveryN == 0 {
		cfg.EventBus.FlushEveryN = def.EventBus.FlushEveryN
	}

	if cfg.Supervisor.TailCapacity == 0 {
		cfg.Supervisor.TailCapacity = def.Supervisor.TailCapacity
	}
	if cfg.Supervisor.DecisionTimeout == 0 {
		cfg.Supervisor.DecisionTimeout = def.Supervisor.DecisionTimeout
	}
	if cfg.Supervisor.DecisionTickEvery == 0 {
		cfg.Supervisor.DecisionTickEvery = def.Supervisor.DecisionTickEvery
	}
	if cfg.Supervisor.AbortGraceMS == 0 {
		cfg.Supervisor.AbortGraceMS = def.Supervisor.AbortGraceMS
	}
	if cfg.Supervisor.FailMode == "" {
		cfg.Supervisor.FailMode = def.Supervisor.FailMode
	}
	if cfg.Supervisor.Marker == "" {
		cfg.Supervisor.Marker = def.Supervisor.Marker
	}

	if cfg.Gatekeeper.MaxInject == 0 {
		cfg.Gatekeeper.MaxInject = def.Gatekeeper.MaxInject
	}
	if cfg.Gatekeeper.SkipIfTop1ScoreGE == 0 {
		cfg.Gatekeeper.SkipIfTop1ScoreGE = def.Gatekeeper.SkipIfTop1ScoreGE
	}
	if cfg.Gatekeeper.BlockIfConsecutiveFailGE == 0 {
		cfg.Gatekeeper.BlockIfConsecutiveFailGE = def.Gatekeeper.BlockIfConsecutiveFailGE
	}
	if len(cfg.Gatekeeper.ActiveStatuses) == 0 {
		cfg.Gatekeeper.ActiveStatuses = def.Gatekeeper.ActiveStatuses
	}

	if cfg.Candidate.MaxCandidates == 0 {
		cfg.Candidate.MaxCandidates = def.Candidate.MaxCandidates
	}
	if cfg.Candidate.MaxAnswerChars == 0 {
		cfg.Candidate.MaxAnswerChars = def.Candidate.MaxAnswerChars
	}
	if cfg.Candidate.MinAnswerChars == 0 {
		cfg.Candidate.MinAnswerChars = def.Candidate.MinAnswerChars
	}
	if cfg.Candidate.ContextLines == 0 {
		cfg.Candidate.ContextLines = def.Candidate.ContextLines
	}

	if cfg.Memory.Timeout == 0 {
		cfg.Memory.Timeout = def.Memory.Timeout
	}
	if cfg.Memory.AuthMode == "" {
		cfg.Memory.AuthMode = def.Memory.AuthMode
	}
	if cfg.ProjectID != "" && cfg.Memory.ProjectID == "" {
		cfg.Memory.ProjectID = cfg.ProjectID
	}

	if cfg.Executor.MaxParallel == 0 {
		cfg.Executor.MaxParallel = def.Executor.MaxParallel
	}
	if cfg.Executor.MinParallel == 0 {
		cfg.Executor.MinParallel = def.Executor.MinParallel
	}
	if cfg.Executor.DefaultTimeout == 0 {
		cfg.Executor.DefaultTimeout = def.Executor.DefaultTimeout
	}

	if cfg.ToolPolicy.DefaultAction == "" {
		cfg.ToolPolicy.DefaultAction = def.ToolPolicy.DefaultAction
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = def.Tracing.SamplingRate
	}
}

// applyEnvOverrides lets a small set of environment variables override file
// configuration, matching the corpus's MEMEXD_* convention.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("MEMEXD_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMEXD_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMEXD_PROJECT_ID")); v != "" {
		cfg.ProjectID = v
		cfg.Memory.ProjectID = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMEXD_MEMORY_BASE_URL")); v != "" {
		cfg.Memory.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMEXD_MEMORY_API_KEY")); v != "" {
		cfg.Memory.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMEXD_BACKEND")); v != "" {
		cfg.Backend.Program = v
	}
}

// ConfigValidationError aggregates every validation failure found in one
// pass, matching the corpus's convention of failing config with exit code
// 11 and a combined issue list rather than stopping at the first error.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		issues = append(issues, "server.http_port must be between 0 and 65535")
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		issues = append(issues, "server.metrics_port must be between 0 and 65535")
	}
	if strings.TrimSpace(cfg.Backend.Program) == "" {
		issues = append(issues, "backend.program is required")
	}
	if cfg.Backend.StreamFormat != "" && cfg.Backend.StreamFormat != "text" && cfg.Backend.StreamFormat != "jsonl" {
		issues = append(issues, `backend.stream_format must be "text" or "jsonl"`)
	}
	if cfg.FileCache.MaxEntries < 0 {
		issues = append(issues, "file_cache.max_entries must be >= 0")
	}

	if cfg.EventBus.ChannelCapacity < 0 {
		issues = append(issues, "event_bus.channel_capacity must be >= 0")
	}
	if cfg.EventBus.FlushEveryN < 0 {
		issues = append(issues, "event_bus.flush_every_n must be >= 0")
	}

	if cfg.Supervisor.FailMode != "" && cfg.Supervisor.FailMode != supervisor.FailOpen && cfg.Supervisor.FailMode != supervisor.FailClosed {
		issues = append(issues, `supervisor.fail_mode must be "open" or "closed"`)
	}
	if cfg.Supervisor.DecisionTimeout < 0 {
		issues = append(issues, "supervisor.decision_timeout_ms must be >= 0")
	}
	if cfg.Supervisor.AbortGraceMS < 0 {
		issues = append(issues, "supervisor.abort_grace_ms must be >= 0")
	}

	if cfg.Gatekeeper.MinTrustShow < 0 || cfg.Gatekeeper.MinTrustShow > 1 {
		issues = append(issues, "gatekeeper.min_trust_show must be between 0 and 1")
	}
	if cfg.Gatekeeper.SkipIfTop1ScoreGE < 0 || cfg.Gatekeeper.SkipIfTop1ScoreGE > 1 {
		issues = append(issues, "gatekeeper.skip_if_top1_score_ge must be between 0 and 1")
	}
	if cfg.Gatekeeper.MaxInject < 0 {
		issues = append(issues, "gatekeeper.max_inject must be >= 0")
	}
	if cfg.Gatekeeper.BlockIfConsecutiveFailGE < 0 {
		issues = append(issues, "gatekeeper.block_if_consecutive_fail_ge must be >= 0")
	}

	if cfg.Candidate.MaxCandidates < 0 {
		issues = append(issues, "candidate.max_candidates must be >= 0")
	}
	if cfg.Candidate.MinAnswerChars < 0 {
		issues = append(issues, "candidate.min_answer_chars must be >= 0")
	}
	if cfg.Candidate.MaxAnswerChars > 0 && cfg.Candidate.MinAnswerChars > cfg.Candidate.MaxAnswerChars {
		issues = append(issues, "candidate.min_answer_chars must be <= candidate.max_answer_chars")
	}

	if cfg.Memory.BaseURL != "" {
		if mode := strings.ToLower(strings.TrimSpace(cfg.Memory.AuthMode)); mode != "" {
			switch mode {
			case "none", "bearer", "jwt", "oauth2":
			default:
				issues = append(issues, `memory.auth_mode must be "none", "bearer", "jwt", or "oauth2"`)
			}
		}
	}
	if cfg.Memory.Timeout < 0 {
		issues = append(issues, "memory.timeout must be >= 0")
	}

	if cfg.Executor.MaxParallel < 0 {
		issues = append(issues, "executor.max_parallel_tasks must be >= 0")
	}
	if cfg.Executor.MinParallel < 0 {
		issues = append(issues, "executor.min_parallel_tasks must be >= 0")
	}
	if cfg.Executor.MaxParallel > 0 && cfg.Executor.MinParallel > cfg.Executor.MaxParallel {
		issues = append(issues, "executor.min_parallel_tasks must be <= executor.max_parallel_tasks")
	}

	if action := cfg.ToolPolicy.DefaultAction; action != "" && action != policy.ActionAllow && action != policy.ActionDeny {
		issues = append(issues, `tool_policy.default_action must be "allow" or "deny"`)
	}

	if level := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			issues = append(issues, `logging.level must be "debug", "info", "warn", or "error"`)
		}
	}
	if format := strings.ToLower(strings.TrimSpace(cfg.Logging.Format)); format != "" && format != "json" && format != "text" {
		issues = append(issues, `logging.format must be "json" or "text"`)
	}

	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
