package axe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// DefaultScriptURL is the axe-core build used when no local copy is configured.
const DefaultScriptURL = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js"

// DefaultFetchTimeout bounds the one-time download of the engine.
const DefaultFetchTimeout = 30 * time.Second

// maxScriptSize caps the downloaded engine; axe.min.js is well under 1MB.
const maxScriptSize = 8 << 20

// runJS runs the engine and returns only the violations, serialized.
const runJS = `axe.run(document).then(r => JSON.stringify({violations: r.violations}))`

// ErrNotInitialized is returned when the evaluated script did not define window.axe.
var ErrNotInitialized = errors.New("axe-core did not initialize")

// Source says where the engine script comes from. Path wins over URL.
type Source struct {
	URL  string
	Path string
}

func (s Source) readFile() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read axe script %s: %w", s.Path, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("axe script %s is empty", s.Path)
	}
	return string(data), nil
}

// Loader holds the engine source so each page gets the same copy without
// touching disk or network again. The script is evaluated through the
// DevTools protocol rather than added as a <script> tag, so the audited
// page's Content-Security-Policy and network never come into play.
type Loader struct {
	src    Source
	client *http.Client

	mu     sync.Mutex
	script string
}

// NewLoader creates a Loader. A local Path is read immediately so a bad
// path fails here; a URL is fetched on first use.
func NewLoader(src Source, client *http.Client) (*Loader, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	l := &Loader{src: src, client: client}
	if src.Path != "" {
		script, err := src.readFile()
		if err != nil {
			return nil, err
		}
		l.script = script
	}
	return l, nil
}

// Script returns the engine source, downloading it on first use. Failed
// downloads are not cached.
func (l *Loader) Script(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.script != "" {
		return l.script, nil
	}
	script, err := l.download(ctx)
	if err != nil {
		return "", err
	}
	l.script = script
	return script, nil
}

func (l *Loader) download(ctx context.Context) (string, error) {
	url := l.src.URL
	if url == "" {
		url = DefaultScriptURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch axe script %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch axe script %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return "", fmt.Errorf("failed to read axe script %s: %w", url, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("axe script %s is empty", url)
	}
	return string(data), nil
}

// Inject returns an action that evaluates script in the current page and
// checks that window.axe exists afterwards.
func Inject(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ready bool
		expr := script + "\n;typeof window.axe === 'object' && typeof window.axe.run === 'function'"
		if err := chromedp.Evaluate(expr, &ready).Do(ctx); err != nil {
			return fmt.Errorf("axe injection failed: %w", err)
		}
		if !ready {
			return ErrNotInitialized
		}
		return nil
	})
}

// Run returns an action that runs axe against the live DOM and parses the result into report.
func Run(report **Report) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var raw string
		if err := chromedp.Evaluate(runJS, &raw, awaitPromise).Do(ctx); err != nil {
			return fmt.Errorf("axe run failed: %w", err)
		}
		parsed, err := Parse([]byte(raw))
		if err != nil {
			return err
		}
		*report = parsed
		return nil
	})
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
