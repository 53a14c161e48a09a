// Package exec validates the (program, args) pairs a dialect.Strategy
// resolves before they reach os/exec.Command to spawn a backend. The
// supervisor trusts this package's sanitizers as its only defense against a
// config-supplied backend path or base-arg list smuggling shell
// metacharacters into a process that is never run through a shell.
package exec

import (
	"errors"
	"regexp"
	"strings"
)

// Pattern definitions shared by program-name and argument validation.
var (
	// shellMetachars matches characters that only matter if a value is ever
	// interpreted by a shell. exec.Command never invokes one, but a
	// metacharacter surviving into args or the program path is a strong
	// signal the value was meant for a shell somewhere downstream (a
	// dialect's BaseArgs came from user config, not from memexd itself).
	shellMetachars = regexp.MustCompile(`[;&|` + "`" + `$<>]`)

	// controlChars matches characters that cannot appear in a single CLI
	// token without having been smuggled through something that joins
	// strings on newlines.
	controlChars = regexp.MustCompile(`[\r\n]`)

	quoteChars = regexp.MustCompile(`["']`)

	// bareProgramName matches a backend name with no path component, e.g.
	// "codex" or "claude-cli".
	bareProgramName = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)

	windowsDriveLetter = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// Errors returned by SanitizeProgram.
var (
	ErrEmptyProgram      = errors.New("exec: backend program is empty")
	ErrProgramNullByte   = errors.New("exec: backend program contains a null byte")
	ErrProgramControl    = errors.New("exec: backend program contains control characters")
	ErrProgramMetachar   = errors.New("exec: backend program contains shell metacharacters")
	ErrProgramQuote      = errors.New("exec: backend program contains quote characters")
	ErrProgramFlag       = errors.New("exec: backend program starts with a dash")
	ErrProgramBareChars  = errors.New("exec: backend program has invalid characters for a bare name")
)

// looksLikePath reports whether value is a filesystem path rather than a
// bare executable name resolved against PATH: codex/claude/gemini are
// typically invoked by bare name, but a config may point at an absolute or
// relative path to a pinned binary.
func looksLikePath(value string) bool {
	if value == "" {
		return false
	}
	if strings.HasPrefix(value, ".") || strings.HasPrefix(value, "~") {
		return true
	}
	if strings.ContainsAny(value, `/\`) {
		return true
	}
	return windowsDriveLetter.MatchString(value)
}

// SanitizeProgram validates the resolved backend program (dialect.Plan's
// Program field) before it reaches exec.Command, trimming surrounding
// whitespace. A bare name must match bareProgramName; a path is accepted as
// long as it carries none of the control/metacharacter/quote classes below.
func SanitizeProgram(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", ErrEmptyProgram
	}
	if strings.Contains(trimmed, "\x00") {
		return "", ErrProgramNullByte
	}
	if controlChars.MatchString(trimmed) {
		return "", ErrProgramControl
	}
	if shellMetachars.MatchString(trimmed) {
		return "", ErrProgramMetachar
	}
	if quoteChars.MatchString(trimmed) {
		return "", ErrProgramQuote
	}
	if looksLikePath(trimmed) {
		return trimmed, nil
	}
	if strings.HasPrefix(trimmed, "-") {
		return "", ErrProgramFlag
	}
	if !bareProgramName.MatchString(trimmed) {
		return "", ErrProgramBareChars
	}
	return trimmed, nil
}
