package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/pipeline"
	"github.com/jonathan/a11y-auditor/internal/types"
)

const (
	msgServiceUnavailable = "Auditor service is not available. Check API key configuration."
	msgURLRequired        = "URL is required."
	msgInvalidURL         = "Invalid URL format. Please include http:// or https://"
	msgBlockedTarget      = "This URL points to a private or internal address and cannot be audited."
)

// indexView is the data for the form page.
type indexView struct {
	APIKeyPresent      bool
	AuditorInitialized bool
}

// resultsView is the data for the results page.
type resultsView struct {
	Result  *types.AuditResult
	Devices []deviceView
}

type deviceView struct {
	Title    string
	Findings *types.DeviceFindings
}

func newResultsView(result *types.AuditResult) resultsView {
	view := resultsView{Result: result}
	for _, profile := range types.DeviceProfiles() {
		if findings, ok := result.Findings[profile]; ok {
			view.Devices = append(view.Devices, deviceView{Title: profile.Title(), Findings: findings})
		}
	}
	return view
}

// handleIndex renders the audit form
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "index.html", indexView{
		APIKeyPresent:      s.apiKeyPresent,
		AuditorInitialized: s.auditor != nil,
	})
}

// parseAuditRequest validates the form input shared by both audit endpoints.
func (s *Server) parseAuditRequest(r *http.Request) (*types.AuditRequest, error) {
	if s.auditor == nil {
		return nil, &ErrServiceUnavailable{Message: msgServiceUnavailable}
	}

	req := &types.AuditRequest{URL: r.FormValue("url"), Timeout: s.waitTimeout}
	if strings.TrimSpace(req.URL) == "" {
		return nil, &ErrValidation{Field: "url", Message: msgURLRequired}
	}
	if req.Normalize() {
		s.requestLogger(r).Info("prepended scheme to URL", zap.String("url", req.URL))
	}
	if err := req.Validate(); err != nil {
		return nil, &ErrValidation{Field: "url", Message: msgInvalidURL}
	}
	if s.guard != nil {
		if err := s.guard.check(r.Context(), req.URL); err != nil {
			s.requestLogger(r).Warn("audit target refused", zap.String("url", req.URL), zap.Error(err))
			return nil, &ErrValidation{Field: "url", Message: msgBlockedTarget}
		}
	}
	return req, nil
}

// handleAudit runs an audit and renders the results page, or returns JSON
// when the client asks for it.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	req, err := s.parseAuditRequest(r)
	if err != nil {
		log.Warn("audit request rejected", zap.Error(err))
		s.writeError(w, err)
		return
	}

	log.Info("received audit request", zap.String("url", req.URL))
	result := s.auditor.RunAuditWithProgress(r.Context(), req.URL, req.Timeout, nil)
	log.Info("audit complete", zap.String("url", req.URL), zap.Strings("errors", result.Errors))

	if wantsJSON(r) {
		s.jsonResponse(w, http.StatusOK, result)
		return
	}
	s.renderPage(w, r, http.StatusOK, "results.html", newResultsView(result))
}

// handleAuditStream runs an audit, streaming progress events over SSE and
// finishing with a complete event that carries the result.
func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	req, err := s.parseAuditRequest(r)
	if err != nil {
		log.Warn("audit request rejected", zap.Error(err))
		s.writeError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info("starting streaming audit", zap.String("url", req.URL))
	result := s.auditor.RunAuditWithProgress(r.Context(), req.URL, req.Timeout, func(event pipeline.ProgressEvent) {
		if err := sse.WriteEvent("progress", event); err != nil {
			log.Warn("error writing SSE event", zap.Error(err))
		}
	})

	if err := sse.WriteComplete(result); err != nil {
		log.Warn("error writing SSE completion", zap.Error(err))
		_ = sse.WriteError(publicMessage(err))
	}
	log.Info("streaming audit complete", zap.String("url", req.URL))
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"auditor_initialized": s.auditor != nil,
	})
}

// handleNotFound renders the 404 page
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusNotFound, "404.html", nil)
}

// handleInternalError renders the 500 page
func (s *Server) handleInternalError(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		s.errorResponse(w, http.StatusInternalServerError, publicMessage(nil))
		return
	}
	s.renderPage(w, r, http.StatusInternalServerError, "500.html", nil)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
