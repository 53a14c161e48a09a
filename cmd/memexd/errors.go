package main

import (
	"errors"

	"github.com/memexd/memexd/internal/config"
	"github.com/memexd/memexd/internal/executor"
	"github.com/memexd/memexd/internal/supervisor"
)

// exitCodeFor maps a returned error to the process exit code named in the
// specification's five error kinds. A nil error (or one not recognised as
// one of the five kinds) falls back to the generic exit code 1 cobra would
// otherwise use.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var cfgErr *config.ConfigValidationError
	if errors.As(err, &cfgErr) {
		return 11
	}
	var verErr *config.VersionError
	if errors.As(err, &verErr) {
		return 11
	}
	if errors.Is(err, supervisor.ErrSpawnFailed) {
		return 20
	}
	if errors.Is(err, executor.ErrCycle) {
		return 50
	}
	return 1
}
