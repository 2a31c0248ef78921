package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// TargetFilter decides whether a post is fair game for engagement, matching
// its URL and author handle against compiled allow/deny globs.
type TargetFilter struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewTargetFilter compiles the configured patterns. A malformed pattern is a
// configuration error, reported with the offending pattern.
func NewTargetFilter(settings TargetSettings) (*TargetFilter, error) {
	tf := &TargetFilter{}

	for _, pattern := range settings.AllowedPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed target pattern '%s': %w", pattern, err)
		}
		tf.allowed = append(tf.allowed, g)
	}

	for _, pattern := range settings.DeniedPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied target pattern '%s': %w", pattern, err)
		}
		tf.denied = append(tf.denied, g)
	}

	return tf, nil
}

// Allows reports whether the given post URL and author handle pass the
// filter. Denied patterns win over allowed ones; with no allowed patterns
// configured, everything not denied passes.
func (tf *TargetFilter) Allows(url, author string) bool {
	url = strings.TrimSpace(url)
	author = strings.TrimPrefix(strings.TrimSpace(author), "@")

	for _, pattern := range tf.denied {
		if pattern.Match(url) || pattern.Match(author) {
			return false
		}
	}

	if len(tf.allowed) == 0 {
		return true
	}

	for _, pattern := range tf.allowed {
		if pattern.Match(url) || pattern.Match(author) {
			return true
		}
	}

	return false
}
