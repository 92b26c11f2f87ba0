package llm

import (
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "markdown fence",
			input:    "```markdown\n- Missing alt text\n```",
			expected: "- Missing alt text",
		},
		{
			name:     "bare fence",
			input:    "```\nOverall: poor.\n```",
			expected: "Overall: poor.",
		},
		{
			name:     "plain text untouched",
			input:    "Overall: the page fails WCAG 1.1.1.",
			expected: "Overall: the page fails WCAG 1.1.1.",
		},
		{
			name:     "inner fence untouched",
			input:    "Fix this:\n```html\n<img alt=\"\">\n```\nThen retest.",
			expected: "Fix this:\n```html\n<img alt=\"\">\n```\nThen retest.",
		},
		{
			name:     "separate blocks at both ends untouched",
			input:    "```\nnpm install\n```\nThe page fails WCAG 1.1.1.\n```\n<img alt=\"\">\n```",
			expected: "```\nnpm install\n```\nThe page fails WCAG 1.1.1.\n```\n<img alt=\"\">\n```",
		},
		{
			name:     "first line is prose",
			input:    "```Overall assessment here\n- item\n```",
			expected: "Overall assessment here\n- item",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StripCodeFence(tt.input)
			if result != tt.expected {
				t.Errorf("StripCodeFence() = %q, want %q", result, tt.expected)
			}
		})
	}
}
