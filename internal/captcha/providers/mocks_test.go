package providers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
	"github.com/xkilldash9x/gatecrash/internal/humanoid"
)

// fakeDOM scripts snapshot responses per selector pattern. Each Scan swaps
// the current snapshot to whatever Respond produces, mirroring the
// scan-then-read contract of the real inspector.
type fakeDOM struct {
	mu       sync.Mutex
	scans    int
	snapshot []schemas.ElementInfo

	// Respond maps a scan to its snapshot. scanCount is 1-based.
	Respond func(pattern string, scanCount int) []schemas.ElementInfo
	// ScanErr, when set, can fail a scan before the snapshot is swapped.
	ScanErr func(pattern string, scanCount int) error
}

func (d *fakeDOM) Scan(ctx context.Context, contextID, pattern string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scans++
	if d.ScanErr != nil {
		if err := d.ScanErr(pattern, d.scans); err != nil {
			return err
		}
	}
	if d.Respond != nil {
		d.snapshot = d.Respond(pattern, d.scans)
	} else {
		d.snapshot = nil
	}
	return nil
}

func (d *fakeDOM) GetElements(ctx context.Context, contextID string) ([]schemas.ElementInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]schemas.ElementInfo(nil), d.snapshot...), nil
}

// fakeInput records synthesized input without side effects.
type fakeInput struct {
	mu        sync.Mutex
	moves     int
	clicks    []string
	clickDown int
	clickUp   int
	typed     []string

	// OnType fires after a TypeText call, letting tests flip page state.
	OnType func(selector, text string)
	// OnMouseDown fires after each press with the running press count.
	OnMouseDown func(count int)
}

func (f *fakeInput) MoveMouse(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	f.moves++
	f.mu.Unlock()
	return nil
}

func (f *fakeInput) MouseDown(ctx context.Context, button string) error {
	f.mu.Lock()
	f.clickDown++
	count := f.clickDown
	onDown := f.OnMouseDown
	f.mu.Unlock()
	if onDown != nil {
		onDown(count)
	}
	return nil
}

func (f *fakeInput) MouseUp(ctx context.Context, button string) error {
	f.mu.Lock()
	f.clickUp++
	f.mu.Unlock()
	return nil
}

func (f *fakeInput) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	f.clicks = append(f.clicks, selector)
	f.mu.Unlock()
	return nil
}

func (f *fakeInput) ClickAt(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	f.clicks = append(f.clicks, "")
	f.mu.Unlock()
	return nil
}

func (f *fakeInput) TypeText(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	f.typed = append(f.typed, text)
	onType := f.OnType
	f.mu.Unlock()
	if onType != nil {
		onType(selector, text)
	}
	return nil
}

func (f *fakeInput) typedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typed...)
}

// fakeCapture returns a fixed pixel buffer.
type fakeCapture struct {
	mu       sync.Mutex
	captures int
}

func (f *fakeCapture) CaptureRegion(ctx context.Context, x, y, w, h float64) (*schemas.Capture, error) {
	return f.capture()
}

func (f *fakeCapture) CaptureElement(ctx context.Context, contextID, selector string) (*schemas.Capture, error) {
	return f.capture()
}

func (f *fakeCapture) capture() (*schemas.Capture, error) {
	f.mu.Lock()
	f.captures++
	f.mu.Unlock()
	return &schemas.Capture{Data: []byte{0x89, 0x50, 0x4e, 0x47}, Width: 300, Height: 300}, nil
}

// fakeAnnotator counts overlay operations.
type fakeAnnotator struct {
	mu        sync.Mutex
	annotated int
	cleared   int
}

func (f *fakeAnnotator) Annotate(ctx context.Context, contextID string, selectors []string) error {
	f.mu.Lock()
	f.annotated++
	f.mu.Unlock()
	return nil
}

func (f *fakeAnnotator) ClearAnnotations(ctx context.Context, contextID string) error {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
	return nil
}

// fakePerception replays a queue of responses, repeating the last one when
// the queue runs dry.
type fakePerception struct {
	mu        sync.Mutex
	responses []string
	calls     int
	err       error
}

func (f *fakePerception) CompleteWithImage(ctx context.Context, prompt, imageB64, systemPrompt string, maxTokens int, temperature float64) (schemas.PerceptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return schemas.PerceptionResult{}, f.err
	}
	if len(f.responses) == 0 {
		return schemas.PerceptionResult{Success: true, Content: ""}, nil
	}
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return schemas.PerceptionResult{Success: true, Content: content}, nil
}

// fakeCamera records layer operations and serves a constant frame.
type fakeCamera struct {
	mu          sync.Mutex
	backgrounds []string
	overlays    []string
	clears      int
}

func (f *fakeCamera) SetBackgroundImage(path string) error {
	f.mu.Lock()
	f.backgrounds = append(f.backgrounds, path)
	f.mu.Unlock()
	return nil
}

func (f *fakeCamera) SetOverlayImage(path string) error {
	f.mu.Lock()
	f.overlays = append(f.overlays, path)
	f.mu.Unlock()
	return nil
}

func (f *fakeCamera) GetCurrentFrameBase64JPEG(quality int) (string, error) {
	return "ZmFrZWZyYW1l", nil
}

func (f *fakeCamera) ClearOverlay() error {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
	return nil
}

func (f *fakeCamera) ClearBackground() error { return nil }

func (f *fakeCamera) backgroundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backgrounds)
}

// fakeCameraRegistry hands out a single fakeCamera.
type fakeCameraRegistry struct {
	camera   *fakeCamera
	mu       sync.Mutex
	acquired int
	released int
}

func (f *fakeCameraRegistry) Acquire(contextID string) (schemas.VirtualCamera, error) {
	f.mu.Lock()
	f.acquired++
	f.mu.Unlock()
	return f.camera, nil
}

func (f *fakeCameraRegistry) Release(contextID string) {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

// fakePumper counts injected frames.
type fakePumper struct {
	mu     sync.Mutex
	frames int
}

func (f *fakePumper) PushFrame(ctx context.Context, contextID, frameB64 string) error {
	f.mu.Lock()
	f.frames++
	f.mu.Unlock()
	return nil
}

func (f *fakePumper) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func visibleEl(selector, tag, text string) schemas.ElementInfo {
	return schemas.ElementInfo{
		Selector: selector,
		Tag:      tag,
		Text:     text,
		X:        100, Y: 100, Width: 80, Height: 80,
		Visible: true,
	}
}

// newTestEnv builds an Env with aggressive timings so polling loops resolve
// in milliseconds.
func newTestEnv(dom *fakeDOM, input *fakeInput, perc *fakePerception) *Env {
	logger := zap.NewNop()
	humanCfg := config.HumanoidConfig{
		FittsA:           1,
		FittsB:           1,
		PerlinAmplitude:  0.5,
		GaussianStrength: 0.1,
		BowFactor:        0.1,
		StepsPerPixel:    0.02,
		ClickHoldMinMs:   1,
		ClickHoldMaxMs:   2,
		ClickSpread:      0.3,
	}
	var perception schemas.PerceptionClient
	if perc != nil {
		perception = perc
	}
	return &Env{
		DOM:        dom,
		Capture:    &fakeCapture{},
		Input:      input,
		Annotator:  &fakeAnnotator{},
		Perception: perception,
		Human:      humanoid.New(humanCfg, input, logger),
		Solver: config.SolverConfig{
			MaxAttempts:        3,
			AutoSubmit:         true,
			PreCheckWindow:     60 * time.Millisecond,
			VerifyInterval:     10 * time.Millisecond,
			VerifyTimeout:      50 * time.Millisecond,
			SurfaceTimeout:     60 * time.Millisecond,
			ThinkDelayMin:      time.Millisecond,
			ThinkDelayMax:      2 * time.Millisecond,
			InterClickDelayMin: time.Millisecond,
			InterClickDelayMax: 2 * time.Millisecond,
			Liveness: config.LivenessConfig{
				MaxGestureAttempts: 4,
				GestureHold:        5 * time.Millisecond,
				FrameRate:          200,
				JPEGQuality:        80,
				AssetDir:           "testdata",
			},
		},
		Perceptive: config.PerceptionConfig{
			MaxTokens:       256,
			OCRTemperature:  0.1,
			GridTemperature: 0.4,
		},
		Logger: logger,
	}
}
