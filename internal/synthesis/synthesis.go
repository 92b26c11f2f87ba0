// Package synthesis turns rendered pages and axe findings into LLM narratives,
// one per device and one reconciling both devices.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/axe"
	"github.com/jonathan/a11y-auditor/internal/llm"
	"github.com/jonathan/a11y-auditor/internal/prompts"
	"github.com/jonathan/a11y-auditor/internal/types"
)

const promptFile = "audit.json"

// HTMLExcerptLength is how many characters of page source go into a device prompt.
const HTMLExcerptLength = 500

// DeviceInput is what one device run hands to the synthesizer.
type DeviceInput struct {
	URL        string
	Device     types.DeviceProfile
	HTML       string
	Report     *axe.Report
	Screenshot []byte
	Facts      *types.PageFacts
}

// Synthesizer writes accessibility narratives through an llm.Client.
type Synthesizer struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Synthesizer over an existing client.
func New(client llm.Client, logger *zap.Logger) (*Synthesizer, error) {
	if client == nil {
		return nil, errors.New("synthesis: llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{client: client, logger: logger.Named("synthesis")}, nil
}

// NewFromAPIKey creates a Gemini-backed Synthesizer. A blank key fails with
// llm.ErrMissingAPIKey.
func NewFromAPIKey(ctx context.Context, apiKey string, cfg *llm.Config, logger *zap.Logger) (*Synthesizer, error) {
	client, err := llm.NewClient(ctx, cfg, apiKey)
	if err != nil {
		return nil, err
	}
	return New(client, logger)
}

// Close releases the underlying client.
func (s *Synthesizer) Close() error {
	return s.client.Close()
}

// SynthesizeDevice asks the model for a per-device narrative from the
// screenshot, an HTML excerpt and the prioritized violations. Failures come
// back as a failed Narrative, never as an error.
func (s *Synthesizer) SynthesizeDevice(ctx context.Context, in DeviceInput) types.Narrative {
	log := s.logger.With(zap.String("url", in.URL), zap.String("device", string(in.Device)))
	prompt := buildDevicePrompt(in)

	log.Info("requesting device analysis", zap.String("model", s.client.GetModel(llm.TierStandard)))
	text, err := s.client.GenerateWithImage(ctx, prompt, llm.Image{Format: "png", Data: in.Screenshot}, llm.TierStandard)
	if err != nil {
		n := deviceFailure(err)
		log.Error("device analysis failed", zap.String("status", string(n.Status)), zap.Error(err))
		return n
	}

	log.Info("device analysis complete")
	return types.NarrativeText(llm.StripCodeFence(text))
}

// SynthesizeCrossDevice reconciles the two device narratives. A failed device
// narrative is replaced by a placeholder line rather than its error text.
func (s *Synthesizer) SynthesizeCrossDevice(ctx context.Context, desktop, mobile types.Narrative, url string) types.Narrative {
	log := s.logger.With(zap.String("url", url))
	prompt := buildCrossDevicePrompt(desktop, mobile, url)

	log.Info("requesting comprehensive analysis", zap.String("model", s.client.GetModel(llm.TierAdvanced)))
	text, err := s.client.GenerateContent(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		n := crossDeviceFailure(err)
		log.Error("comprehensive analysis failed", zap.String("status", string(n.Status)), zap.Error(err))
		return n
	}

	log.Info("comprehensive analysis complete")
	return types.NarrativeText(llm.StripCodeFence(text))
}

func deviceFailure(err error) types.Narrative {
	var blocked *llm.BlockedError
	switch {
	case errors.As(err, &blocked):
		return types.NarrativeFailure(types.NarrativeBlocked, fmt.Sprintf(
			"Gemini analysis blocked due to safety settings (Reason: %s). Input might contain sensitive content or violate policies.",
			blocked.Reason))
	case errors.Is(err, llm.ErrEmptyResponse):
		return types.NarrativeFailure(types.NarrativeEmpty,
			"Gemini returned an empty response. The analysis could not be performed for this view.")
	default:
		return types.NarrativeFailure(types.NarrativeServiceError,
			fmt.Sprintf("Failed to get analysis from Gemini API. (%v)", err))
	}
}

func crossDeviceFailure(err error) types.Narrative {
	var blocked *llm.BlockedError
	switch {
	case errors.As(err, &blocked):
		return types.NarrativeFailure(types.NarrativeBlocked, fmt.Sprintf(
			"Comprehensive analysis blocked due to safety settings (Reason: %s).", blocked.Reason))
	case errors.Is(err, llm.ErrEmptyResponse):
		return types.NarrativeFailure(types.NarrativeEmpty,
			"Gemini returned an empty response for the comprehensive analysis.")
	default:
		return types.NarrativeFailure(types.NarrativeServiceError,
			fmt.Sprintf("Failed to generate comprehensive analysis via Gemini API. (%v)", err))
	}
}

// buildDevicePrompt fills the device-analysis template.
func buildDevicePrompt(in DeviceInput) string {
	template := prompts.MustGet(promptFile, "device-analysis")
	return prompts.Format(template, map[string]string{
		"Device":     string(in.Device),
		"URL":        in.URL,
		"Violations": formatViolations(in.Report),
		"Facts":      formatFacts(in.Facts),
		"HTML":       excerpt(in.HTML, HTMLExcerptLength),
	})
}

// buildCrossDevicePrompt fills the comprehensive-analysis template.
func buildCrossDevicePrompt(desktop, mobile types.Narrative, url string) string {
	template := prompts.MustGet(promptFile, "comprehensive-analysis")
	return prompts.Format(template, map[string]string{
		"URL":     url,
		"Desktop": narrativeOrPlaceholder(desktop, types.DeviceDesktop),
		"Mobile":  narrativeOrPlaceholder(mobile, types.DeviceMobile),
	})
}

func narrativeOrPlaceholder(n types.Narrative, device types.DeviceProfile) string {
	if n.OK() {
		return n.Text
	}
	return prompts.Format(prompts.MustGet(promptFile, "device-unavailable"), map[string]string{
		"Device": device.Title(),
	})
}

// formatViolations lists serious/critical violations, falling back to the
// first few of any impact under a lower-priority heading.
func formatViolations(report *axe.Report) string {
	violations, lowerPriority := report.Prioritized()
	if len(violations) == 0 {
		return prompts.MustGet(promptFile, "violations-none")
	}

	line := prompts.MustGet(promptFile, "violation-line")
	var sb strings.Builder
	if lowerPriority {
		sb.WriteString(prompts.MustGet(promptFile, "violations-lower-priority"))
		sb.WriteString("\n")
	}
	for i, v := range violations {
		if i > 0 {
			sb.WriteString("\n")
		}
		impact := string(v.Impact)
		if impact == "" {
			impact = "unknown"
		}
		sb.WriteString(prompts.Format(line, map[string]string{
			"ID":     v.ID,
			"Impact": impact,
			"Help":   v.Help,
			"Nodes":  strconv.Itoa(len(v.Nodes)),
		}))
	}
	return sb.String()
}

func formatFacts(facts *types.PageFacts) string {
	if facts == nil {
		return "unavailable"
	}
	lang := facts.Lang
	if lang == "" {
		lang = "missing"
	}
	return fmt.Sprintf("title=%q, lang=%s, images=%d (%d without alt), headings=%d, links=%d",
		facts.Title, lang, facts.Images, facts.ImagesMissingAlt, facts.Headings, facts.Links)
}

// excerpt returns at most n runes of s.
func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
