// Canonical collaborator contracts live here rather than next to their
// implementations so that the solver pipeline, the browser layer, and the
// perception layer can all depend on them without import cycles.
package schemas

import "context"

// DOMInspector exposes the asynchronous DOM scan primitives of the browser
// layer. A Scan invalidates any previously returned snapshot; callers that
// need fresh element state must Scan again before calling GetElements.
type DOMInspector interface {
	// Scan triggers a re-scan of elements matching the selector pattern
	// within the given browsing context, including nested frames.
	Scan(ctx context.Context, contextID, selectorPattern string) error

	// GetElements returns the latest scanned snapshot for the context.
	GetElements(ctx context.Context, contextID string) ([]ElementInfo, error)
}

// ScreenCapturer captures page pixels. Both methods may return an image
// smaller than requested when the viewport is smaller; the dimensions of the
// returned capture are authoritative, not the requested ones.
type ScreenCapturer interface {
	CaptureRegion(ctx context.Context, x, y, w, h float64) (*Capture, error)

	// CaptureElement scrolls the first match into view, resolves its bounds
	// and crops to them.
	CaptureElement(ctx context.Context, contextID, selector string) (*Capture, error)
}

// Capture is a captured page region. Data is encoded PNG or JPEG.
type Capture struct {
	Data   []byte
	Width  int
	Height int
}

// InputSynthesizer dispatches synthetic pointer and keyboard input.
type InputSynthesizer interface {
	MoveMouse(ctx context.Context, x, y float64) error
	MouseDown(ctx context.Context, button string) error
	MouseUp(ctx context.Context, button string) error

	// Click accepts a comma separated selector list and tries each candidate
	// in turn; challenge templates frequently expose the same control under
	// several selectors.
	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, x, y float64) error
	TypeText(ctx context.Context, selector, text string) error
}

// Annotator draws numbered index badges over the given elements, so a grid
// capture can express targets and responses as integer indices. Badges are
// page-side decorations and must be cleared after the capture.
type Annotator interface {
	Annotate(ctx context.Context, contextID string, selectors []string) error
	ClearAnnotations(ctx context.Context, contextID string) error
}

// PerceptionClient is the vision-language model used to read challenge text
// or pick matching grid tiles.
type PerceptionClient interface {
	// CompleteWithImage sends a prompt plus a base64 encoded image. Low
	// temperature is expected for deterministic character OCR, moderate
	// temperature for recall-oriented grid selection.
	CompleteWithImage(ctx context.Context, prompt, imageB64, systemPrompt string, maxTokens int, temperature float64) (PerceptionResult, error)
}

// VirtualCamera is the injected video source used by the liveness
// sub-protocol. Instances are per browsing context and must be released at
// sub-protocol end.
type VirtualCamera interface {
	SetBackgroundImage(path string) error
	SetOverlayImage(path string) error
	GetCurrentFrameBase64JPEG(quality int) (string, error)
	ClearOverlay() error
	ClearBackground() error
}

// CameraRegistry hands out VirtualCamera instances partitioned by browsing
// context, so concurrent solves never share a feed.
type CameraRegistry interface {
	Acquire(contextID string) (VirtualCamera, error)
	Release(contextID string)
}

// FramePumper receives the camera frames pumped into the page's injected
// video source.
type FramePumper interface {
	PushFrame(ctx context.Context, contextID, frameB64 string) error
}
