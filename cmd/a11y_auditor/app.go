package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jonathan/a11y-auditor/internal/axe"
	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/llm"
	"github.com/jonathan/a11y-auditor/internal/observability"
	"github.com/jonathan/a11y-auditor/internal/pipeline"
	"github.com/jonathan/a11y-auditor/internal/synthesis"
)

// app holds everything a command needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	auditor *pipeline.Auditor
	synth   *synthesis.Synthesizer
	// initErr is set when the auditor could not be built.
	initErr error
}

// newApp loads configuration and builds the logger and auditor. A missing or
// rejected API key leaves auditor nil and sets initErr so the server can
// still start and report it. An unreadable axe script is fatal.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWith(v, cfgFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: observability.NewLogger(cfg.Logger, zapcore.Lock(os.Stderr)),
	}

	renderer, err := fetch.NewRenderer(rendererOptions(cfg.Browser, a.logger))
	if err != nil {
		_ = a.logger.Sync()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	synth, err := synthesis.NewFromAPIKey(ctx, cfg.LLM.APIKey, llmConfig(cfg.LLM), a.logger)
	if err != nil {
		a.logger.Error("auditor not initialized", zap.Error(err))
		a.initErr = fmt.Errorf("failed to initialize auditor: %w", err)
		return a, nil
	}
	a.synth = synth
	a.auditor = pipeline.NewAuditor(renderer, synth, a.logger)
	return a, nil
}

// Close releases the LLM client and flushes logs.
func (a *app) Close() {
	if a.synth != nil {
		_ = a.synth.Close()
	}
	_ = a.logger.Sync()
}

func llmConfig(c config.LLMConfig) *llm.Config {
	return llm.DefaultGeminiConfig().
		WithModel(llm.TierStandard, c.StandardModel).
		WithModel(llm.TierAdvanced, c.AdvancedModel).
		WithTemperature(c.Temperature)
}

func rendererOptions(c config.BrowserConfig, logger *zap.Logger) fetch.RendererOptions {
	return fetch.RendererOptions{
		ExecPath:            c.ExecPath,
		SettleDelay:         c.SettleDelay,
		ResizeSettle:        c.ResizeSettle,
		MaxScreenshotHeight: c.MaxScreenshotHeight,
		CaptureTimeout:      c.CaptureTimeout,
		Axe:                 axe.Source{URL: c.AxeScriptURL, Path: c.AxeScriptPath},
		Logger:              logger,
	}
}
