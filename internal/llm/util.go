// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// StripCodeFence removes a single markdown code fence wrapping the whole response.
// Models sometimes answer with ```markdown ... ``` even when asked for plain markdown.
// Text holding more than one fenced block is returned as is.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return text
	}
	if strings.Count(trimmed, "```") != 2 {
		return text
	}

	body := strings.TrimPrefix(trimmed, "```")
	body = strings.TrimSuffix(body, "```")

	// Skip a language identifier on the first line
	if idx := strings.Index(body, "\n"); idx >= 0 {
		firstLine := body[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") {
			body = body[idx+1:]
		}
	}

	return strings.TrimSpace(body)
}
