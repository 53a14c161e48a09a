// Package eventbus implements the bounded MPSC event bus (C3): many
// producers send serialised lines, a single writer goroutine appends them
// to a sink (a file or the process's own standard output) under a
// configurable overflow policy.
package eventbus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config configures one event bus instance.
type Config struct {
	// Enabled, when false, makes the bus a no-op: Send always succeeds
	// without writing anything and Start does not spawn a writer.
	Enabled bool `yaml:"enabled"`
	// Path is "stdout:" to mean the process's own standard output,
	// otherwise a filesystem path opened for append (created if absent).
	Path string `yaml:"path"`
	// ChannelCapacity bounds the producer->writer channel.
	ChannelCapacity int `yaml:"channel_capacity"`
	// DropWhenFull selects the overflow policy: true uses a non-blocking
	// send that increments Dropped() when the channel is full; false
	// blocks the producer until capacity is available.
	DropWhenFull bool `yaml:"drop_when_full"`
	// FlushEveryN flushes the writer after every N writes; the writer
	// always flushes immediately when Path is "stdout:".
	FlushEveryN int `yaml:"flush_every_n"`
}

// DefaultConfig returns sane defaults matching the specification.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Path:            "stdout:",
		ChannelCapacity: 256,
		DropWhenFull:    false,
		FlushEveryN:     10,
	}
}

// Bus is a bounded MPSC channel of lines plus a writer goroutine appending
// them to a sink.
type Bus struct {
	cfg     Config
	lines   chan string
	dropped atomic.Uint64
	done    chan struct{}
	closeWriterOnce sync.Once
	sinkCloser      io.Closer
}

// New constructs a Bus. Call Start to launch the writer goroutine.
func New(cfg Config) *Bus {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 256
	}
	if cfg.FlushEveryN <= 0 {
		cfg.FlushEveryN = 10
	}
	return &Bus{
		cfg:   cfg,
		lines: make(chan string, cfg.ChannelCapacity),
		done:  make(chan struct{}),
	}
}

// Start opens the sink (if Enabled) and launches the writer goroutine. It
// returns immediately; call Wait (or cancel ctx and Wait) to drain.
func (b *Bus) Start(ctx context.Context) error {
	if !b.cfg.Enabled {
		close(b.done)
		return nil
	}

	var w io.Writer
	isStdout := b.cfg.Path == "stdout:" || b.cfg.Path == ""
	if isStdout {
		w = os.Stdout
	} else {
		f, err := os.OpenFile(b.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("eventbus: open sink: %w", err)
		}
		w = f
		b.sinkCloser = f
	}

	bw := bufio.NewWriter(w)
	go b.run(ctx, bw, isStdout)
	return nil
}

func (b *Bus) run(ctx context.Context, bw *bufio.Writer, isStdout bool) {
	defer close(b.done)
	defer func() {
		_ = bw.Flush()
		if b.sinkCloser != nil {
			_ = b.sinkCloser.Close()
		}
	}()

	written := 0
	for {
		select {
		case line, ok := <-b.lines:
			if !ok {
				return
			}
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			if _, err := bw.WriteString(line); err != nil {
				return
			}
			written++
			if isStdout || written%b.cfg.FlushEveryN == 0 {
				_ = bw.Flush()
			}
		case <-ctx.Done():
			// Drain whatever is already queued before exiting so that a
			// cancelled context does not silently lose buffered events.
			for {
				select {
				case line, ok := <-b.lines:
					if !ok {
						return
					}
					if !strings.HasSuffix(line, "\n") {
						line += "\n"
					}
					_, _ = bw.WriteString(line)
				default:
					return
				}
			}
		}
	}
}

// Send enqueues a line for the writer. If the bus is disabled this is a
// no-op success. Behaviour on a full channel is governed by DropWhenFull.
func (b *Bus) Send(ctx context.Context, line string) {
	if !b.cfg.Enabled {
		return
	}
	if b.cfg.DropWhenFull {
		select {
		case b.lines <- line:
		default:
			b.dropped.Add(1)
		}
		return
	}
	select {
	case b.lines <- line:
	case <-ctx.Done():
	}
}

// Dropped returns the number of lines dropped due to a full channel under
// DropWhenFull. The pipeline surfaces this as a tee.drop wrapper event.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops accepting new lines and waits for the writer to drain and
// exit.
func (b *Bus) Close() {
	b.closeWriterOnce.Do(func() {
		close(b.lines)
	})
	<-b.done
}
