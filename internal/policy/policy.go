// Package policy implements the tool policy provider: a denylist/allowlist
// over tool names consulted by the gatekeeper as an additional signal
// alongside its own trust/level thresholds.
package policy

import "strings"

// Action is the outcome of evaluating one tool name against a Provider.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Config defines a provider's rules. Allowlist and Denylist entries may use
// a trailing "*" to match a prefix (e.g. "fs.*").
type Config struct {
	Allowlist     []string `yaml:"allowlist"`
	Denylist      []string `yaml:"denylist"`
	DefaultAction Action   `yaml:"default_action"`
}

// DefaultConfig denies nothing explicitly and allows by default.
func DefaultConfig() Config {
	return Config{DefaultAction: ActionAllow}
}

// Provider evaluates tool names against Config. Denylist always takes
// precedence over Allowlist; Allowlist, when non-empty, makes the policy
// closed (only listed tools are allowed, regardless of DefaultAction).
type Provider struct {
	cfg Config
}

// New constructs a Provider bound to cfg.
func New(cfg Config) *Provider {
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = ActionAllow
	}
	return &Provider{cfg: cfg}
}

// Evaluate reports whether tool is permitted.
func (p *Provider) Evaluate(tool string) Action {
	if matchAny(p.cfg.Denylist, tool) {
		return ActionDeny
	}
	if len(p.cfg.Allowlist) > 0 {
		if matchAny(p.cfg.Allowlist, tool) {
			return ActionAllow
		}
		return ActionDeny
	}
	return p.cfg.DefaultAction
}

func matchAny(patterns []string, tool string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(tool, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if p == tool {
			return true
		}
	}
	return false
}
