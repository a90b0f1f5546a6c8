// Package security screens tasks before execution: target URLs must be
// well-formed and point at an allowed host, and literal input values must
// be free of script-injection content. The gate is a pure predicate with
// no side effects.
package security

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/entrhq/pilot/pkg/types"
	"github.com/gobwas/glob"
)

// DefaultBlockedPatterns are substrings that reject a task when found in
// any action value or the target URL.
var DefaultBlockedPatterns = []string{
	"<script",
	"javascript:",
	"document.write",
	"innerHTML=",
	"eval(",
	"onerror=",
}

// Config configures a Gate.
type Config struct {
	// AllowedDomains are exact hosts or glob patterns ("*.example.com").
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains"`

	// BlockedPatterns replace DefaultBlockedPatterns when non-empty.
	BlockedPatterns []string `json:"blocked_patterns,omitempty" yaml:"blocked_patterns,omitempty"`

	// EnableInputValidation turns on action-value screening.
	EnableInputValidation bool `json:"enable_input_validation" yaml:"enable_input_validation"`
}

// Gate validates tasks against the configured policy.
type Gate struct {
	exact    map[string]bool
	globs    []glob.Glob
	suffixes []string
	blocked  []string
	screen   bool
}

// NewGate compiles the policy. Invalid glob patterns are reported rather
// than silently dropped, since a typo would otherwise widen the policy.
func NewGate(cfg Config) (*Gate, error) {
	g := &Gate{
		exact:  make(map[string]bool),
		screen: cfg.EnableInputValidation,
	}

	for _, domain := range cfg.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if strings.ContainsAny(domain, "*?[") {
			compiled, err := glob.Compile(domain)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed domain pattern %q: %w", domain, err)
			}
			g.globs = append(g.globs, compiled)
			// "*.example.com" also admits bare and deeper subdomains via
			// the suffix heuristic.
			if strings.HasPrefix(domain, "*.") {
				g.suffixes = append(g.suffixes, domain[1:])
			}
			continue
		}
		g.exact[domain] = true
		g.suffixes = append(g.suffixes, "."+domain)
	}

	g.blocked = cfg.BlockedPatterns
	if len(g.blocked) == 0 {
		g.blocked = DefaultBlockedPatterns
	}

	return g, nil
}

// Validate checks the task's target URL and action values against the
// policy. A nil return means the task may execute; a non-nil error names
// the first violation.
func (g *Gate) Validate(task *types.Task) error {
	if task.Config.URL != "" {
		if err := g.validateURL(task.Config.URL); err != nil {
			return err
		}
	}

	if !g.screen {
		return nil
	}

	for i, action := range task.Config.Actions {
		if action.Value == "" {
			continue
		}
		if pattern := g.matchBlocked(action.Value); pattern != "" {
			return fmt.Errorf("action %d value matches blocked pattern %q", i, pattern)
		}
	}
	return nil
}

func (g *Gate) validateURL(raw string) error {
	if pattern := g.matchBlocked(raw); pattern != "" {
		return fmt.Errorf("url matches blocked pattern %q", pattern)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	if !g.hostAllowed(host) {
		return fmt.Errorf("host %q is not in the allow-list", host)
	}
	return nil
}

func (g *Gate) hostAllowed(host string) bool {
	if g.exact[host] {
		return true
	}
	for _, compiled := range g.globs {
		if compiled.Match(host) {
			return true
		}
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func (g *Gate) matchBlocked(value string) string {
	lowered := strings.ToLower(value)
	for _, pattern := range g.blocked {
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return pattern
		}
	}
	return ""
}
