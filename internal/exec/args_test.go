package exec

import (
	"errors"
	"testing"
)

func TestSanitizeArgument(t *testing.T) {
	tests := []struct {
		name        string
		arg         string
		expected    string
		expectedErr error
	}{
		{"simple arg", "file.txt", "file.txt", nil},
		{"flag arg", "--verbose", "--verbose", nil},
		{"path arg", "/path/to/file", "/path/to/file", nil},
		{"quoted prompt text", `"hello world"`, `"hello world"`, nil},
		{"resume id", "sess-abc123", "sess-abc123", nil},

		{"empty", "", "", ErrEmptyArgument},
		{"null byte", "file\x00name", "", ErrArgumentNullByte},
		{"newline", "line1\nline2", "", ErrArgumentControlChar},
		{"shell metachar", "file;rm", "", ErrArgumentShellMetachar},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := SanitizeArgument(tc.arg)
			if tc.expectedErr != nil {
				if !errors.Is(err, tc.expectedErr) {
					t.Errorf("SanitizeArgument(%q) error = %v, want %v", tc.arg, err, tc.expectedErr)
				}
				return
			}
			if err != nil {
				t.Errorf("SanitizeArgument(%q) unexpected error = %v", tc.arg, err)
			}
			if result != tc.expected {
				t.Errorf("SanitizeArgument(%q) = %q, want %q", tc.arg, result, tc.expected)
			}
		})
	}
}

func TestSanitizeArguments(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expected    []string
		expectError bool
		errorIndex  int
	}{
		{"nil args", nil, nil, false, -1},
		{"empty slice", []string{}, []string{}, false, -1},
		{"codex-style args", []string{"exec", "--json", "--skip-git-repo-check"}, []string{"exec", "--json", "--skip-git-repo-check"}, false, -1},
		{"first arg invalid", []string{"file;rm", "good"}, nil, true, 0},
		{"second arg invalid", []string{"good", "file\nname"}, nil, true, 1},
		{"eleventh arg invalid", []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "bad|arg"}, nil, true, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := SanitizeArguments(tc.args)
			if tc.expectError {
				if err == nil {
					t.Fatalf("SanitizeArguments(%v) expected error, got nil", tc.args)
				}
				var argErr *ArgumentError
				if !errors.As(err, &argErr) {
					t.Fatalf("SanitizeArguments(%v) error type = %T, want *ArgumentError", tc.args, err)
				}
				if argErr.Index != tc.errorIndex {
					t.Errorf("SanitizeArguments(%v) error index = %d, want %d", tc.args, argErr.Index, tc.errorIndex)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeArguments(%v) unexpected error = %v", tc.args, err)
			}
			if len(result) != len(tc.expected) {
				t.Fatalf("SanitizeArguments(%v) len = %d, want %d", tc.args, len(result), len(tc.expected))
			}
			for i, v := range result {
				if v != tc.expected[i] {
					t.Errorf("SanitizeArguments(%v)[%d] = %q, want %q", tc.args, i, v, tc.expected[i])
				}
			}
		})
	}
}

func TestArgumentError(t *testing.T) {
	err := &ArgumentError{Index: 10, Arg: "bad|arg", Err: ErrArgumentShellMetachar}

	got := err.Error()
	want := `argument 10 ("bad|arg") is unsafe: exec: argument contains shell metacharacters`
	if got != want {
		t.Errorf("ArgumentError.Error() = %q, want %q", got, want)
	}

	if !errors.Is(err.Unwrap(), ErrArgumentShellMetachar) {
		t.Errorf("ArgumentError.Unwrap() = %v, want %v", err.Unwrap(), ErrArgumentShellMetachar)
	}
}

func BenchmarkSanitizeArguments(b *testing.B) {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SanitizeArguments(args)
	}
}
