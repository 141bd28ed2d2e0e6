// Package transform normalizes post content before delivery: content
// replacements, HTML to plain text conversion, and image downscaling.
package transform

import (
	"fmt"
	"regexp"

	"toot2mail/internal/config"
)

// Replacer applies an ordered list of compiled replacement rules to text.
// Each rule runs exactly once, in configuration order, over the text as
// rewritten by the preceding rules.
type Replacer struct {
	rules []compiledRule
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// ReplacerFromRules compiles the configured rules. A malformed pattern is a
// startup error.
func ReplacerFromRules(rules []config.Rule) (*Replacer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("content_replacements[%d]: %w", i, err)
		}
		compiled = append(compiled, compiledRule{re: re, replacement: r.Replacement})
	}
	return &Replacer{rules: compiled}, nil
}

// Apply rewrites text with every rule in order. A rule that matches nothing
// leaves the text unchanged. Capture group references ($1, ${name}) in the
// replacement are expanded.
func (r *Replacer) Apply(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range r.rules {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}
	return text
}

// Len returns the number of compiled rules.
func (r *Replacer) Len() int { return len(r.rules) }
