// Package types provides type definitions for structured data used throughout the accessibility auditor.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultWaitTimeout is how long the renderer waits for DOM readiness when a request does not say.
const DefaultWaitTimeout = 15 * time.Second

// MaxViolationSummaries is the number of violations kept per device for presentation and prompting.
const MaxViolationSummaries = 5

// DeviceProfile selects the viewport and emulation used to render a page.
type DeviceProfile string

const (
	// DeviceDesktop renders at a fixed 1280px wide viewport
	DeviceDesktop DeviceProfile = "desktop"
	// DeviceMobile renders with phone emulation
	DeviceMobile DeviceProfile = "mobile"
)

// DeviceProfiles returns the profiles in the order an audit processes them.
func DeviceProfiles() []DeviceProfile {
	return []DeviceProfile{DeviceDesktop, DeviceMobile}
}

// Valid reports whether p is one of the known profiles.
func (p DeviceProfile) Valid() bool {
	return p == DeviceDesktop || p == DeviceMobile
}

// Title returns the capitalized label used in error summaries ("Desktop", "Mobile").
func (p DeviceProfile) Title() string {
	if p == "" {
		return ""
	}
	s := string(p)
	return strings.ToUpper(s[:1]) + s[1:]
}

// AuditRequest is the caller-facing input to a single audit.
type AuditRequest struct {
	URL     string        `json:"url" validate:"required,url"`
	Timeout time.Duration `json:"timeout,omitempty" validate:"gte=0"`
}

// HasScheme reports whether url starts with http:// or https://.
func HasScheme(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Normalize trims the URL, prepends http:// when no scheme is present and
// fills the default timeout. It reports whether a scheme was added.
func (r *AuditRequest) Normalize() bool {
	r.URL = strings.TrimSpace(r.URL)
	if r.Timeout == 0 {
		r.Timeout = DefaultWaitTimeout
	}
	if r.URL == "" || HasScheme(r.URL) {
		return false
	}
	r.URL = "http://" + r.URL
	return true
}

// Validate validates the AuditRequest using the validator.
func (r *AuditRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Impact is the axe-core severity of a violated rule.
type Impact string

// Impact levels reported by axe-core, lowest to highest
const (
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactSerious  Impact = "serious"
	ImpactCritical Impact = "critical"
)

// IsHighPriority reports whether the impact is serious or critical.
func (i Impact) IsHighPriority() bool {
	return i == ImpactSerious || i == ImpactCritical
}

// ViolationSummary is the presentation form of one violated rule.
type ViolationSummary struct {
	ID     string `json:"id"`
	Impact Impact `json:"impact"`
	Help   string `json:"help"`
	Nodes  int    `json:"nodes"`
}

// PageFacts are structural facts pulled from the rendered HTML.
type PageFacts struct {
	Title            string `json:"title"`
	Lang             string `json:"lang"`
	Images           int    `json:"images"`
	ImagesMissingAlt int    `json:"images_missing_alt"`
	Headings         int    `json:"headings"`
	Links            int    `json:"links"`
}

// ErrorCategory classifies a per-device render failure.
type ErrorCategory string

// Render failure categories
const (
	ErrorTimeout    ErrorCategory = "Timeout"
	ErrorDriver     ErrorCategory = "DriverFailure"
	ErrorUnexpected ErrorCategory = "UnexpectedFailure"
)

// NarrativeStatus tags the outcome of an LLM synthesis call.
type NarrativeStatus string

// Narrative outcomes
const (
	NarrativeOK           NarrativeStatus = "ok"
	NarrativeBlocked      NarrativeStatus = "blocked"
	NarrativeEmpty        NarrativeStatus = "empty"
	NarrativeServiceError NarrativeStatus = "service_error"
)

// Narrative is the tagged result of a synthesis call: text on success,
// a status and reason otherwise.
type Narrative struct {
	Status NarrativeStatus
	Text   string
	Reason string
}

// NarrativeText builds a successful narrative.
func NarrativeText(text string) Narrative {
	return Narrative{Status: NarrativeOK, Text: text}
}

// NarrativeFailure builds a failed narrative.
func NarrativeFailure(status NarrativeStatus, reason string) Narrative {
	return Narrative{Status: status, Reason: reason}
}

// OK reports whether the narrative carries generated text.
func (n Narrative) OK() bool {
	return n.Status == NarrativeOK
}

// String renders the narrative for display. Failures carry an "Error:" prefix.
func (n Narrative) String() string {
	if n.OK() {
		return n.Text
	}
	return "Error: " + n.Reason
}

// DeviceFindings is the outcome of one device run. Exactly one of the
// success fields or the failure fields is meaningful, selected by OK.
type DeviceFindings struct {
	ok bool

	ViolationCount int
	Violations     []ViolationSummary
	Analysis       Narrative
	Page           *PageFacts

	ErrorCategory ErrorCategory
	Error         string
}

// NewDeviceSuccess builds a success record. The summary is truncated to MaxViolationSummaries.
func NewDeviceSuccess(count int, summary []ViolationSummary, analysis Narrative, page *PageFacts) *DeviceFindings {
	if len(summary) > MaxViolationSummaries {
		summary = summary[:MaxViolationSummaries]
	}
	if summary == nil {
		summary = []ViolationSummary{}
	}
	return &DeviceFindings{
		ok:             true,
		ViolationCount: count,
		Violations:     summary,
		Analysis:       analysis,
		Page:           page,
	}
}

// NewDeviceFailure builds a failure record.
func NewDeviceFailure(category ErrorCategory, message string) *DeviceFindings {
	return &DeviceFindings{ErrorCategory: category, Error: message}
}

// OK reports whether this is a success record.
func (f *DeviceFindings) OK() bool {
	return f != nil && f.ok
}

// MarshalJSON emits either the success or the failure shape.
func (f *DeviceFindings) MarshalJSON() ([]byte, error) {
	if !f.OK() {
		return json.Marshal(struct {
			ErrorCategory ErrorCategory `json:"error_category"`
			Error         string        `json:"error"`
		}{f.ErrorCategory, f.Error})
	}
	return json.Marshal(struct {
		ViolationCount int                `json:"axe_violations_count"`
		Violations     []ViolationSummary `json:"axe_violations_summary"`
		Analysis       string             `json:"gemini_analysis"`
		AnalysisStatus NarrativeStatus    `json:"gemini_status"`
		Page           *PageFacts         `json:"page,omitempty"`
	}{f.ViolationCount, f.Violations, f.Analysis.String(), f.Analysis.Status, f.Page})
}

// AuditResult is built up by one audit and handed back to the caller.
type AuditResult struct {
	ID                    uuid.UUID
	URL                   string
	Timestamp             time.Time
	Findings              map[DeviceProfile]*DeviceFindings
	ComprehensiveAnalysis *Narrative
	Errors                []string
}

// NewAuditResult returns an empty result for url.
func NewAuditResult(url string) *AuditResult {
	return &AuditResult{
		ID:       uuid.New(),
		URL:      url,
		Findings: make(map[DeviceProfile]*DeviceFindings),
		Errors:   []string{},
	}
}

// AddError appends a non-fatal error message.
func (r *AuditResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AllDevicesSucceeded reports whether every device profile has a success record.
func (r *AuditResult) AllDevicesSucceeded() bool {
	for _, p := range DeviceProfiles() {
		if !r.Findings[p].OK() {
			return false
		}
	}
	return true
}

// MarshalJSON emits the public report format with a non-null errors array.
func (r *AuditResult) MarshalJSON() ([]byte, error) {
	out := struct {
		ID                    uuid.UUID                         `json:"id"`
		URL                   string                            `json:"url"`
		Timestamp             time.Time                         `json:"timestamp"`
		Findings              map[DeviceProfile]*DeviceFindings `json:"findings"`
		ComprehensiveAnalysis *string                           `json:"comprehensive_analysis,omitempty"`
		ComprehensiveStatus   NarrativeStatus                   `json:"comprehensive_status,omitempty"`
		Errors                []string                          `json:"errors"`
	}{
		ID:        r.ID,
		URL:       r.URL,
		Timestamp: r.Timestamp,
		Findings:  r.Findings,
		Errors:    r.Errors,
	}
	if r.ComprehensiveAnalysis != nil {
		text := r.ComprehensiveAnalysis.String()
		out.ComprehensiveAnalysis = &text
		out.ComprehensiveStatus = r.ComprehensiveAnalysis.Status
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return json.Marshal(out)
}
