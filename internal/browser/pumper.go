package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// frameSinkScript installs the injected video source: getUserMedia is
// replaced with a stream captured from a hidden canvas, and a frame sink
// function paints each pushed JPEG onto that canvas. Installed once per tab,
// before the page requests the camera.
const frameSinkScript = `(() => {
	if (window.__gcFrameSink) return true;
	const canvas = document.createElement('canvas');
	canvas.width = 640;
	canvas.height = 480;
	const ctx2d = canvas.getContext('2d');
	const stream = canvas.captureStream(30);
	const original = navigator.mediaDevices.getUserMedia.bind(navigator.mediaDevices);
	navigator.mediaDevices.getUserMedia = (constraints) => {
		if (constraints && constraints.video) return Promise.resolve(stream);
		return original(constraints);
	};
	window.__gcFrameSink = (b64) => {
		const img = new Image();
		img.onload = () => ctx2d.drawImage(img, 0, 0, canvas.width, canvas.height);
		img.src = 'data:image/jpeg;base64,' + b64;
	};
	return true;
})()`

// Pumper implements schemas.FramePumper: it feeds base64 JPEG frames into
// the tab's injected video source.
type Pumper struct {
	manager *Manager

	mu       sync.Mutex
	injected map[string]bool
}

// NewPumper creates the frame injection collaborator.
func NewPumper(manager *Manager) *Pumper {
	return &Pumper{manager: manager, injected: make(map[string]bool)}
}

var _ schemas.FramePumper = (*Pumper)(nil)

// PushFrame paints one frame onto the injected video source, installing the
// sink on first use.
func (p *Pumper) PushFrame(ctx context.Context, contextID, frameB64 string) error {
	tab, err := p.manager.Tab(contextID)
	if err != nil {
		return err
	}
	if err := p.ensureSink(ctx, tab); err != nil {
		return err
	}
	var ok bool
	script := fmt.Sprintf("window.__gcFrameSink(%q) === undefined", frameB64)
	if err := tab.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("frame push failed: %w", err)
	}
	return nil
}

func (p *Pumper) ensureSink(ctx context.Context, tab *Tab) error {
	p.mu.Lock()
	done := p.injected[tab.ID]
	p.mu.Unlock()
	if done {
		return nil
	}
	var installed bool
	if err := tab.run(ctx, chromedp.Evaluate(frameSinkScript, &installed)); err != nil {
		return fmt.Errorf("frame sink installation failed: %w", err)
	}
	p.mu.Lock()
	p.injected[tab.ID] = true
	p.mu.Unlock()
	return nil
}
