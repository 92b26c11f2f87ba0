// Package axe wraps the axe-core accessibility rule engine: injecting it into a
// live page, running it, and turning its JSON output into violation reports.
package axe

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jonathan/a11y-auditor/internal/types"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed results.schema.json
var resultsSchema string

// Report is the subset of an axe.run() result the auditor uses.
type Report struct {
	Violations []Violation `json:"violations"`
}

// Violation is one failed rule.
type Violation struct {
	ID          string       `json:"id"`
	Impact      types.Impact `json:"impact"`
	Help        string       `json:"help"`
	Description string       `json:"description,omitempty"`
	HelpURL     string       `json:"helpUrl,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Nodes       []Node       `json:"nodes"`
}

// Node is one DOM element affected by a violation.
type Node struct {
	HTML   string          `json:"html"`
	Target json.RawMessage `json:"target,omitempty"`
}

// ParseError represents axe output that could not be used
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("axe parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("axe parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Parse validates raw axe JSON against the embedded schema and decodes it.
func Parse(raw []byte) (*Report, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Message: "empty axe result"}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(resultsSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, &ParseError{Message: "invalid JSON", Cause: err}
	}
	if !result.Valid() {
		msg := "result does not match schema"
		if errs := result.Errors(); len(errs) > 0 {
			msg = fmt.Sprintf("%s: %s: %s", msg, errs[0].Field(), errs[0].Description())
		}
		return nil, &ParseError{Message: msg}
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, &ParseError{Message: "failed to decode result", Cause: err}
	}
	return &report, nil
}

// Count returns the number of violated rules.
func (r *Report) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Violations)
}

// Summary returns the first n violations in engine order.
func (r *Report) Summary(n int) []types.ViolationSummary {
	if r == nil {
		return []types.ViolationSummary{}
	}
	count := min(len(r.Violations), n)
	out := make([]types.ViolationSummary, 0, count)
	for _, v := range r.Violations[:count] {
		out = append(out, v.Summary())
	}
	return out
}

// Summary converts a violation to its presentation form.
func (v Violation) Summary() types.ViolationSummary {
	return types.ViolationSummary{
		ID:     v.ID,
		Impact: v.Impact,
		Help:   v.Help,
		Nodes:  len(v.Nodes),
	}
}

// Prioritized returns up to five serious or critical violations. When there are
// none it falls back to the first three of any impact and reports lowerPriority.
func (r *Report) Prioritized() (violations []Violation, lowerPriority bool) {
	if r == nil {
		return nil, false
	}
	for _, v := range r.Violations {
		if v.Impact.IsHighPriority() {
			violations = append(violations, v)
			if len(violations) == 5 {
				break
			}
		}
	}
	if len(violations) > 0 {
		return violations, false
	}
	count := min(len(r.Violations), 3)
	if count == 0 {
		return nil, false
	}
	return r.Violations[:count], true
}
