package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"screendoc/internal/logging"
	"screendoc/internal/types"
)

// RodCapturer captures a Chromium page via go-rod and writes PNGs under
// the session's screenshots directory.
type RodCapturer struct {
	mu        sync.Mutex
	browser   *rod.Browser
	page      *rod.Page
	dir       string
	targetURL string
	seq       int
	started   bool
}

// NewRodCapturer creates a capturer that writes into dir. targetURL may
// be empty, in which case the browser opens on about:blank and the user
// navigates wherever the workflow happens.
func NewRodCapturer(dir, targetURL string) *RodCapturer {
	return &RodCapturer{dir: dir, targetURL: targetURL}
}

// start lazily launches the browser on first capture so that building
// the capturer never blocks on Chromium startup.
func (c *RodCapturer) start() error {
	if c.started {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create screenshots dir: %w", err)
	}

	u, err := launcher.New().Headless(false).Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: normalizeURL(c.targetURL)})
	if err != nil {
		browser.Close()
		return fmt.Errorf("failed to open page: %w", err)
	}

	c.browser = browser
	c.page = page
	c.started = true
	logging.Capture("browser capturer started (target=%s)", normalizeURL(c.targetURL))
	return nil
}

// Capture takes a screenshot and returns its ref. Failures wrap into a
// capture.Error so the caller skips the tick rather than terminating.
func (c *RodCapturer) Capture(ctx context.Context) (types.CaptureRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.start(); err != nil {
		return types.CaptureRef{}, &Error{Err: err}
	}

	data, err := c.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return types.CaptureRef{}, &Error{Err: err}
	}

	c.seq++
	name := fmt.Sprintf("capture_%d_%s.png", c.seq, time.Now().Format("20060102_150405"))
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.CaptureRef{}, &Error{Err: err}
	}

	logging.Capture("captured %s (%d bytes)", name, len(data))
	return types.CaptureRef{ID: name, Path: path}, nil
}

// Close shuts the browser down.
func (c *RodCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return c.browser.Close()
}

// normalizeURL fills in a scheme for bare hosts.
func normalizeURL(target string) string {
	if target == "" {
		return "about:blank"
	}
	if !strings.HasPrefix(target, "http") {
		return "https://" + target
	}
	return target
}

var _ Capturer = (*RodCapturer)(nil)
