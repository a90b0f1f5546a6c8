// Package resolver locates page elements for a selector, falling back to
// caller-supplied alternates and learned substitutions when the primary
// selector does not match. The learning rule is a greedy heuristic over
// past successes, not a statistical model.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/entrhq/pilot/pkg/logging"
)

// Resolution confidence by method.
const (
	ConfidencePrimary  = 0.95
	ConfidenceFallback = 0.70
	ConfidenceSmart    = 0.60
)

// Resolution methods.
const (
	MethodPrimary  = "primary"
	MethodFallback = "fallback"
	MethodSmart    = "smart_generation"
	MethodFailed   = "failed"
	MethodError    = "error"
)

// Finder is the single driver operation the resolver needs.
type Finder interface {
	Exists(ctx context.Context, selector string) (bool, error)
}

// Resolution is the outcome of one resolve attempt.
type Resolution struct {
	// Selector is the selector that matched; empty when not found.
	Selector string

	// Confidence scores how trustworthy the match is (0 to 0.95).
	Confidence float64

	// Method names the strategy that produced the match.
	Method string

	// Found reports whether any selector matched.
	Found bool
}

// Resolver resolves selectors against a page and learns substitutions that
// worked. One resolver is owned by one engine; its pattern table lives for
// the engine's lifetime.
type Resolver struct {
	finder   Finder
	patterns *PatternStore
	logger   *zap.Logger
}

// New creates a resolver over the finder with a bounded pattern store.
func New(finder Finder, logger *zap.Logger) *Resolver {
	return &Resolver{
		finder:   finder,
		patterns: NewPatternStore(DefaultPatternCapacity),
		logger:   logging.Component(logger, "resolver"),
	}
}

// Patterns exposes the learned-pattern store, primarily for inspection.
func (r *Resolver) Patterns() *PatternStore {
	return r.patterns
}

// Resolve attempts the primary selector, then the caller's fallbacks in
// order, then smart candidates: learned substitutions (when useLearned is
// set) followed by mechanical rewrites of the original selector.
// Successful fallback and smart matches are learned.
func (r *Resolver) Resolve(ctx context.Context, selector string, fallbacks []string, useLearned bool) Resolution {
	sawError := false

	found, err := r.finder.Exists(ctx, selector)
	if err != nil {
		sawError = true
		r.logger.Debug("primary query failed", zap.String("selector", selector), zap.Error(err))
	} else if found {
		return Resolution{Selector: selector, Confidence: ConfidencePrimary, Method: MethodPrimary, Found: true}
	}

	for _, fallback := range fallbacks {
		found, err = r.finder.Exists(ctx, fallback)
		if err != nil {
			sawError = true
			continue
		}
		if found {
			r.patterns.Learn(selector, fallback)
			r.logger.Debug("resolved via fallback",
				zap.String("selector", selector), zap.String("fallback", fallback))
			return Resolution{Selector: fallback, Confidence: ConfidenceFallback, Method: MethodFallback, Found: true}
		}
	}

	for _, candidate := range r.smartCandidates(selector, useLearned) {
		found, err = r.finder.Exists(ctx, candidate)
		if err != nil {
			sawError = true
			continue
		}
		if found {
			r.patterns.Learn(selector, candidate)
			r.logger.Debug("resolved via smart candidate",
				zap.String("selector", selector), zap.String("candidate", candidate))
			return Resolution{Selector: candidate, Confidence: ConfidenceSmart, Method: MethodSmart, Found: true}
		}
	}

	method := MethodFailed
	if sawError {
		method = MethodError
	}
	return Resolution{Method: method}
}

// smartCandidates generates substitute selectors: the learned pattern for
// this selector first (when enabled), then mechanical rewrites of the
// original.
func (r *Resolver) smartCandidates(selector string, useLearned bool) []string {
	var candidates []string

	if useLearned {
		if pattern, ok := r.patterns.Lookup(selector); ok && pattern.Learned != selector {
			candidates = append(candidates, pattern.Learned)
		}
	}

	token := selectorToken(selector)
	switch {
	case strings.HasPrefix(selector, "#"):
		candidates = append(candidates, fmt.Sprintf(`[id*="%s"]`, token))
	case strings.HasPrefix(selector, "."):
		candidates = append(candidates, fmt.Sprintf(`[class*="%s"]`, token))
	}

	if token != "" {
		candidates = append(candidates,
			fmt.Sprintf(`[name*="%s"]`, token),
			fmt.Sprintf(`[placeholder*="%s"]`, token),
			fmt.Sprintf(`[title*="%s"]`, token),
			fmt.Sprintf(`[aria-label*="%s"]`, token),
		)
	}

	return dedupe(candidates, selector)
}

// selectorToken extracts the trailing identifier of a selector for use in
// attribute-contains rewrites ("#login-form" -> "login-form",
// "form .submit" -> "submit").
func selectorToken(selector string) string {
	fields := strings.Fields(selector)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	last = strings.TrimLeft(last, "#.")
	// Stop at the first combinator or pseudo-class character.
	if idx := strings.IndexAny(last, ":[>+~"); idx >= 0 {
		last = last[:idx]
	}
	return last
}

func dedupe(candidates []string, original string) []string {
	seen := map[string]bool{original: true}
	out := candidates[:0]
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
