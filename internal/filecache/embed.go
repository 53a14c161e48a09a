package filecache

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// inlineSizeLimit is the threshold "auto" mode uses to decide between
// embedding a file's content and merely referencing its path: above this
// size a file is referenced, not embedded, to keep prompts bounded.
const inlineSizeLimit = 64 * 1024

// Embed resolves a task's files list (paths or globs) against the cache and
// renders them into a text block suitable for appending to a prompt. mode
// is "embed", "ref", or "auto"; encoding is "utf-8", "base64", or "auto".
func Embed(cache *Cache, files []string, mode, encoding string) (string, error) {
	if len(files) == 0 {
		return "", nil
	}

	var matches []string
	seen := make(map[string]bool)
	for _, pattern := range files {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return "", fmt.Errorf("filecache: bad glob %q: %w", pattern, err)
		}
		if len(paths) == 0 {
			paths = []string{pattern}
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			matches = append(matches, p)
		}
	}
	sort.Strings(matches)

	var b strings.Builder
	for _, path := range matches {
		content, err := cache.Get(path)
		if err != nil {
			return "", fmt.Errorf("filecache: read %q: %w", path, err)
		}
		renderFile(&b, path, content, mode, encoding)
	}
	return b.String(), nil
}

func renderFile(b *strings.Builder, path string, content []byte, mode, encoding string) {
	effMode := mode
	if effMode == "" || effMode == "auto" {
		if len(content) > inlineSizeLimit {
			effMode = "ref"
		} else {
			effMode = "embed"
		}
	}

	if effMode == "ref" {
		fmt.Fprintf(b, "\n[FILE %s mode=ref size=%d]\n", path, len(content))
		return
	}

	effEncoding := encoding
	if effEncoding == "" || effEncoding == "auto" {
		if utf8.Valid(content) {
			effEncoding = "utf-8"
		} else {
			effEncoding = "base64"
		}
	}

	fmt.Fprintf(b, "\n[FILE %s mode=embed encoding=%s]\n", path, effEncoding)
	if effEncoding == "base64" {
		b.WriteString(base64.StdEncoding.EncodeToString(content))
	} else {
		b.Write(content)
	}
	fmt.Fprintf(b, "\n[/FILE %s]\n", path)
}
