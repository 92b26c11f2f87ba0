// Package pipeline provides the high-level orchestration for an accessibility audit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/pipeline/steps"
	"github.com/jonathan/a11y-auditor/internal/synthesis"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// ErrInvalidURL is the message recorded when a URL lacks an http(s) scheme.
const ErrInvalidURL = "Invalid URL format. Please include http:// or https://"

// Progress event steps
const (
	StepRenderStarted         = "render_started"
	StepRenderComplete        = "render_complete"
	StepRenderFailed          = "render_failed"
	StepSynthesisComplete     = "synthesis_complete"
	StepComprehensiveComplete = "comprehensive_complete"
)

// ProgressEvent represents a progress update during an audit
type ProgressEvent struct {
	Step    string              `json:"step"`
	Device  types.DeviceProfile `json:"device,omitempty"`
	Message string              `json:"message"`
	AuditID string              `json:"audit_id,omitempty"`
	Content any                 `json:"content,omitempty"`
}

// ProgressCallback is called when audit progress occurs
type ProgressCallback func(event ProgressEvent)

// PageRenderer loads a page for one device profile.
type PageRenderer interface {
	Render(ctx context.Context, url string, profile types.DeviceProfile, timeout time.Duration) (*fetch.Page, error)
}

// FindingsSynthesizer writes the per-device and cross-device narratives.
type FindingsSynthesizer interface {
	SynthesizeDevice(ctx context.Context, in synthesis.DeviceInput) types.Narrative
	SynthesizeCrossDevice(ctx context.Context, desktop, mobile types.Narrative, url string) types.Narrative
}

// Auditor runs audits. Device runs are sequential and share nothing but the
// result being built.
type Auditor struct {
	renderer PageRenderer
	synth    FindingsSynthesizer
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuditor creates an Auditor.
func NewAuditor(renderer PageRenderer, synth FindingsSynthesizer, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		renderer: renderer,
		synth:    synth,
		logger:   logger.Named("auditor"),
		now:      time.Now,
	}
}

// RunAudit audits url on every device profile. It never fails: every problem
// is recorded in the returned result.
func (a *Auditor) RunAudit(ctx context.Context, url string, timeout time.Duration) *types.AuditResult {
	return a.RunAuditWithProgress(ctx, url, timeout, nil)
}

// RunAuditWithProgress is RunAudit with a progress callback.
func (a *Auditor) RunAuditWithProgress(ctx context.Context, url string, timeout time.Duration, onProgress ProgressCallback) *types.AuditResult {
	if timeout <= 0 {
		timeout = types.DefaultWaitTimeout
	}
	result := types.NewAuditResult(url)
	r := &run{
		Auditor:    a,
		result:     result,
		tracker:    steps.NewTracker(),
		onProgress: onProgress,
		log:        a.logger.With(zap.String("url", url), zap.String("audit_id", result.ID.String())),
	}
	defer func() { result.Timestamp = a.now() }()

	r.log.Info("starting audit", zap.Duration("timeout", timeout))
	if !types.HasScheme(url) {
		r.log.Error("invalid URL format")
		result.AddError(ErrInvalidURL)
		return result
	}

	narratives := make(map[types.DeviceProfile]types.Narrative, 2)
	for _, profile := range types.DeviceProfiles() {
		narratives[profile] = r.auditDevice(ctx, url, profile, timeout)
	}

	if r.tracker.Ready(steps.Comprehensive) {
		r.comprehensive(ctx, url, narratives[types.DeviceDesktop], narratives[types.DeviceMobile])
	} else {
		r.log.Info("skipping comprehensive analysis", zap.Error(r.tracker.ValidateDependencies(steps.Comprehensive)))
	}

	r.log.Info("audit finished", zap.Int("errors", len(result.Errors)))
	return result
}

// run holds the state of one audit.
type run struct {
	*Auditor
	result     *types.AuditResult
	tracker    *steps.Tracker
	onProgress ProgressCallback
	log        *zap.Logger
}

// emitProgress calls the progress callback if configured
func (r *run) emitProgress(step string, device types.DeviceProfile, message string, content any) {
	if r.onProgress != nil {
		r.onProgress(ProgressEvent{
			Step:    step,
			Device:  device,
			Message: message,
			AuditID: r.result.ID.String(),
			Content: content,
		})
	}
}

func (r *run) auditDevice(ctx context.Context, url string, profile types.DeviceProfile, timeout time.Duration) types.Narrative {
	log := r.log.With(zap.String("device", string(profile)))
	log.Info("analyzing device")
	r.emitProgress(StepRenderStarted, profile, fmt.Sprintf("Loading %s view", profile), nil)

	page, err := r.renderer.Render(ctx, url, profile, timeout)
	if err != nil {
		findings, summary := deviceFailure(profile, timeout, err)
		log.Error("device analysis failed", zap.String("category", string(findings.ErrorCategory)), zap.Error(err))
		r.result.Findings[profile] = findings
		r.result.AddError("%s", summary)
		r.emitProgress(StepRenderFailed, profile, findings.Error, nil)
		return types.Narrative{}
	}
	r.tracker.Complete(steps.Render(profile))
	r.emitProgress(StepRenderComplete, profile, fmt.Sprintf("%s view loaded", profile.Title()), map[string]int{
		"axe_violations_count": page.Report.Count(),
	})

	narrative := r.synth.SynthesizeDevice(ctx, synthesis.DeviceInput{
		URL:        url,
		Device:     profile,
		HTML:       page.HTML,
		Report:     page.Report,
		Screenshot: page.Screenshot,
		Facts:      page.Facts,
	})
	if narrative.OK() {
		r.tracker.Complete(steps.Analyze(profile))
	} else {
		log.Warn("device narrative failed", zap.String("status", string(narrative.Status)), zap.String("reason", narrative.Reason))
		r.result.AddError("%s Gemini analysis failed: %s", profile.Title(), narrative.Reason)
	}

	findings := types.NewDeviceSuccess(page.Report.Count(), page.Report.Summary(types.MaxViolationSummaries), narrative, page.Facts)
	r.result.Findings[profile] = findings
	r.emitProgress(StepSynthesisComplete, profile, fmt.Sprintf("%s analysis complete", profile.Title()), findings)
	log.Info("device analysis successful", zap.Int("violations", findings.ViolationCount))
	return narrative
}

// comprehensive runs cross-device synthesis. A panic is recorded in the
// result instead of escaping RunAudit.
func (r *run) comprehensive(ctx context.Context, url string, desktop, mobile types.Narrative) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("comprehensive analysis panicked", zap.Any("panic", rec))
			n := types.NarrativeFailure(types.NarrativeServiceError, fmt.Sprintf("Could not generate comprehensive analysis: %v", rec))
			r.result.ComprehensiveAnalysis = &n
			r.result.AddError("Error generating comprehensive analysis.")
		}
	}()

	r.log.Info("generating comprehensive analysis")
	n := r.synth.SynthesizeCrossDevice(ctx, desktop, mobile, url)
	r.result.ComprehensiveAnalysis = &n
	if n.OK() {
		r.tracker.Complete(steps.Comprehensive)
	} else {
		r.log.Warn("comprehensive analysis failed", zap.String("status", string(n.Status)), zap.String("reason", n.Reason))
		r.result.AddError("Comprehensive analysis failed: %s", n.Reason)
	}
	r.emitProgress(StepComprehensiveComplete, "", "Comprehensive analysis complete", n.String())
}

// deviceFailure builds the failure record and error-list line for a render error.
func deviceFailure(profile types.DeviceProfile, timeout time.Duration, err error) (*types.DeviceFindings, string) {
	category := types.ErrorUnexpected
	var renderErr *fetch.RenderError
	if errors.As(err, &renderErr) {
		category = renderErr.Category
	}

	switch category {
	case types.ErrorTimeout:
		seconds := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
		return types.NewDeviceFailure(category, fmt.Sprintf(
				"Error analyzing %s version: Page timed out after %s seconds. The site might be too slow, complex, or inaccessible.",
				profile, seconds)),
			fmt.Sprintf("%s analysis failed: Page timed out.", profile.Title())
	case types.ErrorDriver:
		return types.NewDeviceFailure(category, fmt.Sprintf(
				"Error analyzing %s version: Browser driver issue. This might be due to browser compatibility or configuration on the server.",
				profile)),
			fmt.Sprintf("%s analysis failed: Browser driver error.", profile.Title())
	default:
		return types.NewDeviceFailure(types.ErrorUnexpected, fmt.Sprintf(
				"An unexpected error occurred during %s analysis.", profile)),
			fmt.Sprintf("%s analysis failed: %v", profile.Title(), err)
	}
}
