package candidate

import "regexp"

// secretPatterns is the shared redaction pattern set: used here by the
// candidate extractor's strict-secret-block check, and reused verbatim by
// internal/observability's log-value redaction so there is exactly one
// definition of "what a secret looks like" in the module.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(sk-[A-Za-z0-9]{20,})\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`(?i)\b(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+=*\.[A-Za-z0-9_\-]+=*\.[A-Za-z0-9_\-]+=*\b`),
	regexp.MustCompile(`-----BEGIN (RSA|EC|OPENSSH|DSA)? ?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)\b[a-z]+://[^/\s:]+:[^/\s@]+@`),
}

// Patterns exposes the shared pattern set for reuse by other packages
// (observability's log redaction).
func Patterns() []*regexp.Regexp {
	return secretPatterns
}

// ContainsSecret reports whether text matches any known secret pattern.
func ContainsSecret(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactSecrets replaces every match of any known secret pattern with
// "[REDACTED]".
func RedactSecrets(text string) string {
	out := text
	for _, p := range secretPatterns {
		out = p.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
