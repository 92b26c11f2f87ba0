package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/a11y-auditor/internal/axe"
	"github.com/jonathan/a11y-auditor/internal/llm"
	"github.com/jonathan/a11y-auditor/internal/types"
)

type fakeClient struct {
	text string
	err  error

	prompts []string
	images  []llm.Image
	tiers   []llm.ModelTier
	closed  bool
}

func (f *fakeClient) GenerateContent(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.tiers = append(f.tiers, tier)
	return f.text, f.err
}

func (f *fakeClient) GenerateWithImage(_ context.Context, prompt string, image llm.Image, tier llm.ModelTier) (string, error) {
	f.images = append(f.images, image)
	return f.GenerateContent(context.Background(), prompt, tier)
}

func (f *fakeClient) GetModel(tier llm.ModelTier) string { return "fake-" + string(tier) }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newSynth(t *testing.T, client *fakeClient) *Synthesizer {
	t.Helper()
	s, err := New(client, nil)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestNewFromAPIKey_MissingKey(t *testing.T) {
	_, err := NewFromAPIKey(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestSynthesizeDevice_Success(t *testing.T) {
	client := &fakeClient{text: "```markdown\nDesktop OK\n```"}
	s := newSynth(t, client)

	n := s.SynthesizeDevice(context.Background(), DeviceInput{
		URL:        "http://example.com",
		Device:     types.DeviceDesktop,
		HTML:       "<html><body>hi</body></html>",
		Report:     &axe.Report{},
		Screenshot: []byte{0x89, 'P', 'N', 'G'},
	})

	assert.True(t, n.OK())
	assert.Equal(t, "Desktop OK", n.Text)
	require.Len(t, client.images, 1)
	assert.Equal(t, "png", client.images[0].Format)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, client.images[0].Data)
	assert.Equal(t, []llm.ModelTier{llm.TierStandard}, client.tiers)
	assert.Contains(t, client.prompts[0], "desktop website view (http://example.com)")
	assert.Contains(t, client.prompts[0], "No critical/serious Axe violations found.")
}

func TestSynthesizeDevice_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus types.NarrativeStatus
		wantText   string
	}{
		{
			name:       "blocked",
			err:        &llm.BlockedError{Reason: "SAFETY"},
			wantStatus: types.NarrativeBlocked,
			wantText:   "blocked due to safety settings (Reason: SAFETY)",
		},
		{
			name:       "empty",
			err:        fmt.Errorf("%w: no candidates in response", llm.ErrEmptyResponse),
			wantStatus: types.NarrativeEmpty,
			wantText:   "empty response",
		},
		{
			name:       "transport",
			err:        errors.New("connection reset"),
			wantStatus: types.NarrativeServiceError,
			wantText:   "Failed to get analysis from Gemini API. (connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSynth(t, &fakeClient{err: tt.err})
			n := s.SynthesizeDevice(context.Background(), DeviceInput{URL: "http://example.com", Device: types.DeviceMobile})

			assert.False(t, n.OK())
			assert.Equal(t, tt.wantStatus, n.Status)
			assert.Contains(t, n.String(), "Error")
			assert.Contains(t, n.String(), tt.wantText)
		})
	}
}

func TestSynthesizeCrossDevice(t *testing.T) {
	client := &fakeClient{text: "Overall: not compliant."}
	s := newSynth(t, client)

	n := s.SynthesizeCrossDevice(context.Background(),
		types.NarrativeText("Desktop OK"),
		types.NarrativeFailure(types.NarrativeEmpty, "nothing"),
		"http://example.com")

	require.True(t, n.OK())
	assert.Equal(t, "Overall: not compliant.", n.Text)
	assert.Empty(t, client.images)
	assert.Equal(t, []llm.ModelTier{llm.TierAdvanced}, client.tiers)

	prompt := client.prompts[0]
	assert.Contains(t, prompt, "Desktop OK")
	assert.Contains(t, prompt, "Mobile analysis unavailable or failed.")
	assert.NotContains(t, prompt, "nothing")
}

func TestSynthesizeCrossDevice_Failure(t *testing.T) {
	s := newSynth(t, &fakeClient{err: &llm.BlockedError{Reason: "OTHER"}})

	n := s.SynthesizeCrossDevice(context.Background(), types.NarrativeText("a"), types.NarrativeText("b"), "http://example.com")
	assert.Equal(t, types.NarrativeBlocked, n.Status)
	assert.Equal(t, "Error: Comprehensive analysis blocked due to safety settings (Reason: OTHER).", n.String())
}

func TestFormatViolations(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		assert.Equal(t, "No critical/serious Axe violations found.", formatViolations(nil))
	})

	t.Run("high priority", func(t *testing.T) {
		report := &axe.Report{Violations: []axe.Violation{
			{ID: "region", Impact: types.ImpactModerate, Help: "Landmarks"},
			{ID: "image-alt", Impact: types.ImpactCritical, Help: "Images must have alternate text", Nodes: make([]axe.Node, 3)},
		}}
		got := formatViolations(report)
		assert.Equal(t, "- image-alt (critical): Images must have alternate text (3 instances)", got)
	})

	t.Run("lower priority", func(t *testing.T) {
		report := &axe.Report{Violations: []axe.Violation{
			{ID: "a", Impact: types.ImpactMinor, Help: "A"},
			{ID: "b", Help: "B", Nodes: make([]axe.Node, 1)},
		}}
		lines := strings.Split(formatViolations(report), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "Top Axe violations (lower priority, no critical/serious found):", lines[0])
		assert.Equal(t, "- a (minor): A (0 instances)", lines[1])
		assert.Equal(t, "- b (unknown): B (1 instances)", lines[2])
	})
}

func TestBuildDevicePrompt_HTMLExcerpt(t *testing.T) {
	html := strings.Repeat("é", HTMLExcerptLength+50)
	prompt := buildDevicePrompt(DeviceInput{
		URL:    "http://example.com",
		Device: types.DeviceMobile,
		HTML:   html,
		Facts:  &types.PageFacts{Title: "Home", Images: 2, ImagesMissingAlt: 1},
	})

	assert.Contains(t, prompt, "`"+strings.Repeat("é", HTMLExcerptLength)+"...`")
	assert.NotContains(t, prompt, strings.Repeat("é", HTMLExcerptLength+1))
	assert.Contains(t, prompt, `title="Home", lang=missing, images=2 (1 without alt)`)
	assert.Contains(t, prompt, "mobile website view")
}

func TestFormatFacts_Nil(t *testing.T) {
	assert.Equal(t, "unavailable", formatFacts(nil))
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	require.NoError(t, newSynth(t, client).Close())
	assert.True(t, client.closed)
}

func TestSynthesizeCrossDevice_KeepsSeparateCodeBlocks(t *testing.T) {
	text := "```\nnpm install\n```\nThe page fails WCAG 1.1.1.\n```\n<img alt=\"\">\n```"
	s := newSynth(t, &fakeClient{text: text})

	n := s.SynthesizeCrossDevice(context.Background(),
		types.NarrativeText("desktop"), types.NarrativeText("mobile"), "http://example.com")

	require.True(t, n.OK())
	assert.Equal(t, text, n.Text)
}
