// Package session writes and removes the per-server state file that lets
// an operator discover a running `memexd serve` instance: its port, pid,
// and start time, keyed by session name under ~/.memex/servers/.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// State is the on-disk shape of one server's session file.
type State struct {
	SessionID string    `json:"session_id"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Dir returns the base directory for session state files.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".memex", "servers")
}

// Path returns the state file path for the given session name.
func Path(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return filepath.Join(Dir(), name+".state")
}

// Write records the running server's state to disk, creating the servers
// directory if needed.
func Write(name string, st State) error {
	path := Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("session: create state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write state: %w", err)
	}
	return nil
}

// Read loads a session's state file. It returns an error satisfying
// os.IsNotExist when no server is running under that name.
func Read(name string) (State, error) {
	var st State
	data, err := os.ReadFile(Path(name))
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("session: decode state: %w", err)
	}
	return st, nil
}

// Remove deletes a session's state file. Missing files are not an error,
// since graceful shutdown may race an operator's own cleanup.
func Remove(name string) error {
	if err := os.Remove(Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: remove state: %w", err)
	}
	return nil
}

// List returns the session names with a state file currently on disk.
func List() ([]string, error) {
	entries, err := os.ReadDir(Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".state"); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
