package rendering

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	policy = bluemonday.UGCPolicy()
)

// MarkdownToHTML renders markdown and sanitizes the result. Model output is
// untrusted, so raw HTML in the source never survives.
func MarkdownToHTML(source string) (template.HTML, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", &RenderError{Message: "failed to convert markdown", Cause: err}
	}

	//nolint:gosec // sanitized by bluemonday above
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

// Markdown is MarkdownToHTML for templates: on failure it falls back to the
// escaped source text.
func Markdown(source string) template.HTML {
	out, err := MarkdownToHTML(source)
	if err != nil {
		//nolint:gosec // escaped
		return template.HTML("<pre>" + template.HTMLEscapeString(source) + "</pre>")
	}
	return out
}
