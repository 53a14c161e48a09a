package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "backend:\n  program: codex\n")

	w := NewWatcher(path, 20*time.Millisecond, nil)
	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx, func(cfg *Config) { reloaded <- cfg }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("backend:\n  program: claude\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Backend.Program != "claude" {
			t.Fatalf("expected reloaded program claude, got %q", cfg.Backend.Program)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
