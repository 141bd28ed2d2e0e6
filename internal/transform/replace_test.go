package transform

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"toot2mail/internal/config"
)

func TestReplacerApply(t *testing.T) {
	tests := []struct {
		name  string
		rules []config.Rule
		input string
		want  string
	}{
		{
			name:  "no rules is a no-op",
			rules: nil,
			input: "see https://youtube.com/watch",
			want:  "see https://youtube.com/watch",
		},
		{
			name: "simple prefix rewrite",
			rules: []config.Rule{
				{Pattern: `https://youtube\.com/`, Replacement: "https://alt/"},
			},
			input: "see https://youtube.com/watch",
			want:  "see https://alt/watch",
		},
		{
			name: "unrelated second rule does not touch rewritten text",
			rules: []config.Rule{
				{Pattern: `https://youtube\.com/`, Replacement: "https://alt/"},
				{Pattern: `https://twitter\.com/`, Replacement: "https://nitter/"},
			},
			input: "see https://youtube.com/watch",
			want:  "see https://alt/watch",
		},
		{
			name: "rules apply in order over rewritten text",
			rules: []config.Rule{
				{Pattern: `aaa`, Replacement: "bbb"},
				{Pattern: `bbb`, Replacement: "ccc"},
			},
			input: "aaa",
			want:  "ccc",
		},
		{
			name: "capture group preserved in replacement",
			rules: []config.Rule{
				{Pattern: `https://([a-z]+)\.medium\.com/`, Replacement: "https://scribe.rip/$1/"},
			},
			input: "https://blog.medium.com/post",
			want:  "https://scribe.rip/blog/post",
		},
		{
			name: "rule matching nothing leaves text unchanged",
			rules: []config.Rule{
				{Pattern: `https://nowhere\.example/`, Replacement: "x"},
			},
			input: "plain text",
			want:  "plain text",
		},
		{
			name: "all occurrences replaced in a single pass",
			rules: []config.Rule{
				{Pattern: `cat`, Replacement: "dog"},
			},
			input: "cat and cat",
			want:  "dog and dog",
		},
		{
			name: "empty input stays empty",
			rules: []config.Rule{
				{Pattern: `x`, Replacement: "y"},
			},
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ReplacerFromRules(tt.rules)
			if err != nil {
				t.Fatalf("compile rules: %v", err)
			}
			got := r.Apply(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplacerFromRulesRejectsBadPattern(t *testing.T) {
	_, err := ReplacerFromRules([]config.Rule{{Pattern: `(`, Replacement: "x"}})
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}
