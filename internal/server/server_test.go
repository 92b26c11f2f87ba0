package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/pipeline"
	"github.com/jonathan/a11y-auditor/internal/server/middleware"
	"github.com/jonathan/a11y-auditor/internal/types"
)

type fakeAuditor struct {
	urls     []string
	timeouts []time.Duration
	panicMsg string
}

func (f *fakeAuditor) RunAuditWithProgress(_ context.Context, u string, timeout time.Duration, onProgress pipeline.ProgressCallback) *types.AuditResult {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.urls = append(f.urls, u)
	f.timeouts = append(f.timeouts, timeout)

	result := types.NewAuditResult(u)
	result.Timestamp = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	if onProgress != nil {
		onProgress(pipeline.ProgressEvent{Step: pipeline.StepRenderStarted, Device: types.DeviceDesktop, Message: "Loading desktop view"})
	}
	result.Findings[types.DeviceDesktop] = types.NewDeviceSuccess(1, []types.ViolationSummary{
		{ID: "image-alt", Impact: types.ImpactCritical, Help: "Images must have alternate text", Nodes: 2},
	}, types.NarrativeText("Overall: **fails**.\n\n<script>alert(1)</script>"), nil)
	result.Findings[types.DeviceMobile] = types.NewDeviceFailure(types.ErrorTimeout, "Error analyzing mobile version: Page timed out after 15 seconds.")
	result.AddError("Mobile analysis failed: Page timed out.")
	return result
}

func newTestServer(t *testing.T, auditor AuditRunner) http.Handler {
	t.Helper()
	s, err := New(Options{
		Config:        config.Default().Server,
		Auditor:       auditor,
		APIKeyPresent: auditor != nil,
		WaitTimeout:   20 * time.Second,
	})
	require.NoError(t, err)
	return s.Handler()
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealthEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["auditor_initialized"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestIndex(t *testing.T) {
	t.Run("initialized", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestServer(t, &fakeAuditor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), `action="/audit"`)
		assert.NotContains(t, w.Body.String(), "No Gemini API key")
	})

	t.Run("no api key", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestServer(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "No Gemini API key")
		assert.Contains(t, w.Body.String(), "disabled")
	})
}

func TestAudit_ServiceUnavailable(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(w, postForm("/audit", url.Values{"url": {"https://example.com"}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Auditor service is not available. Check API key configuration.", resp["error"])
}

func TestAudit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "missing", url: "", wantErr: "URL is required."},
		{name: "blank", url: "   ", wantErr: "URL is required."},
		{name: "malformed", url: "http://exa mple", wantErr: "Invalid URL format. Please include http:// or https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &fakeAuditor{}
			w := httptest.NewRecorder()
			newTestServer(t, auditor).ServeHTTP(w, postForm("/audit", url.Values{"url": {tt.url}}))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp["error"])
			assert.Empty(t, auditor.urls)
		})
	}
}

func TestAudit_PrependsScheme(t *testing.T) {
	auditor := &fakeAuditor{}
	w := httptest.NewRecorder()
	newTestServer(t, auditor).ServeHTTP(w, postForm("/audit", url.Values{"url": {"example.com"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"http://example.com"}, auditor.urls)
	assert.Equal(t, []time.Duration{20 * time.Second}, auditor.timeouts)
}

func TestAudit_HTMLResults(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, postForm("/audit", url.Values{"url": {"https://example.com"}}))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Desktop view")
	assert.Contains(t, body, "<strong>fails</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "image-alt")
	assert.Contains(t, body, "Mobile view")
	assert.Contains(t, body, "Timeout:")
	assert.Contains(t, body, "Mobile analysis failed: Page timed out.")
	assert.Contains(t, body, "2026-05-04 10:00:00")
	assert.NotContains(t, body, "Comprehensive analysis")
}

func TestAudit_JSON(t *testing.T) {
	req := postForm("/audit", url.Values{"url": {"https://example.com"}})
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		URL      string                     `json:"url"`
		Findings map[string]json.RawMessage `json:"findings"`
		Errors   []string                   `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://example.com", resp.URL)
	assert.Contains(t, string(resp.Findings["mobile"]), `"error_category":"Timeout"`)
	assert.Contains(t, string(resp.Findings["desktop"]), `"axe_violations_count":1`)
	assert.Equal(t, []string{"Mobile analysis failed: Page timed out."}, resp.Errors)
}

func TestAuditStream(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, postForm("/audit/stream", url.Values{"url": {"https://example.com"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var events []string
	var data []string
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Equal(t, []string{"progress", "complete"}, events)

	var progress pipeline.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(data[0]), &progress))
	assert.Equal(t, pipeline.StepRenderStarted, progress.Step)
	assert.Equal(t, types.DeviceDesktop, progress.Device)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(data[1]), &result))
	assert.Equal(t, "https://example.com", result["url"])
}

func TestAuditStream_Rejected(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, postForm("/audit/stream", url.Values{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Page not found")
}

func TestPanicRendersErrorPage(t *testing.T) {
	handler := newTestServer(t, &fakeAuditor{panicMsg: "boom"})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, postForm("/audit", url.Values{"url": {"https://example.com"}}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Something went wrong")

	req := postForm("/audit", url.Values{"url": {"https://example.com"}})
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"An internal error occurred during the audit."}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	newTestServer(t, &fakeAuditor{}).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/audit", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Default().Server
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	s, err := New(Options{Config: cfg, Auditor: &fakeAuditor{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
