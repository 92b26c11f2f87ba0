package rendering

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{
			name:     "bullets and bold",
			input:    "Overall: **fails** EN 301 549.\n\n- Missing alt text (WCAG 1.1.1)\n- Low contrast",
			contains: []string{"<strong>fails</strong>", "<li>Missing alt text (WCAG 1.1.1)</li>", "<ul>"},
		},
		{
			name:     "heading",
			input:    "## Critical Barriers",
			contains: []string{"<h2", "Critical Barriers</h2>"},
		},
		{
			name:     "hard wraps",
			input:    "line one\nline two",
			contains: []string{"line one<br"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarkdownToHTML(tt.input)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, string(out), want)
			}
		})
	}
}

func TestMarkdownToHTML_Sanitizes(t *testing.T) {
	out, err := MarkdownToHTML("Hello <script>alert(1)</script> [x](javascript:alert(1)) <img src=x onerror=alert(1)>")
	require.NoError(t, err)

	html := string(out)
	assert.NotContains(t, html, "<script")
	assert.NotContains(t, html, "javascript:")
	assert.NotContains(t, html, "onerror")
	assert.Contains(t, html, "Hello")
}

func TestMarkdownToHTML_Empty(t *testing.T) {
	out, err := MarkdownToHTML("   \n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMarkdown(t *testing.T) {
	assert.Contains(t, string(Markdown("*ok*")), "<em>ok</em>")
}

func TestRenderError(t *testing.T) {
	cause := errors.New("boom")
	err := &RenderError{Message: "failed to convert markdown", Cause: cause}
	assert.Equal(t, "render error: failed to convert markdown: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "render error: x", (&RenderError{Message: "x"}).Error())
}
