// Package browser implements the collaborator contracts the challenge
// pipeline consumes — DOM introspection, screen capture, input synthesis,
// annotation and frame injection — on top of a headless Chrome instance
// driven over CDP.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process and hands out tabs keyed by context ID.
// Allocation is deferred until the first tab is requested.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu   sync.RWMutex
	tabs map[string]*Tab
	wg   sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// Tab is one browsing context: a single page plus its latest DOM snapshot.
type Tab struct {
	ID     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	snapMu   sync.RWMutex
	snapshot []elementRecord
}

// NewManager creates a browser manager. The browser process is launched
// lazily on first NewTab.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser"),
		cfg:    cfg,
		tabs:   make(map[string]*Tab),
	}
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
		if !m.cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		if m.cfg.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
			opts = append(opts, chromedp.WindowSize(w, h))
		}
		for _, arg := range m.cfg.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}
		// Allow fake media streams so the virtual camera feed is accepted
		// without a permission prompt.
		opts = append(opts,
			chromedp.Flag("use-fake-ui-for-media-stream", true),
			chromedp.Flag("use-fake-device-for-media-stream", true),
		)

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator initialized", zap.Bool("headless", m.cfg.Headless))
	})
	return m.initErr
}

// NewTab opens a fresh browsing context and registers it under a generated
// context ID.
func (m *Manager) NewTab(ctx context.Context) (*Tab, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(m.allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	id := uuid.New().String()
	tab := &Tab{
		ID:     id,
		ctx:    tabCtx,
		cancel: cancel,
		logger: m.logger.With(zap.String("context", id)),
	}

	m.mu.Lock()
	m.tabs[tab.ID] = tab
	m.mu.Unlock()
	m.wg.Add(1)

	m.logger.Info("Tab opened", zap.String("context", tab.ID))
	return tab, nil
}

// Tab returns the tab registered under the context ID.
func (m *Manager) Tab(contextID string) (*Tab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tab, ok := m.tabs[contextID]
	if !ok {
		return nil, fmt.Errorf("no browsing context %q", contextID)
	}
	return tab, nil
}

// CloseTab tears down one browsing context.
func (m *Manager) CloseTab(contextID string) {
	m.mu.Lock()
	tab, ok := m.tabs[contextID]
	if ok {
		delete(m.tabs, contextID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	tab.cancel()
	m.wg.Done()
	m.logger.Info("Tab closed", zap.String("context", contextID))
}

// Shutdown closes every tab and the browser process, waiting up to a grace
// period for tabs to release.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tabs))
	for id := range m.tabs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.CloseTab(id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Shutdown grace period elapsed with tabs still open")
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shut down")
}

// Navigate drives the tab to a URL and waits for the configured settle time.
func (m *Manager) Navigate(ctx context.Context, contextID, url string) error {
	tab, err := m.Tab(contextID)
	if err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()
	if err := tab.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if m.cfg.PostLoadWait > 0 {
		select {
		case <-time.After(m.cfg.PostLoadWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// run executes chromedp actions against this tab, honoring the caller's
// deadline alongside the tab lifecycle.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(t.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
