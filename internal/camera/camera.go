// Package camera provides a software virtual camera: a composited image
// frame source the liveness flow injects into the page in place of a real
// device. Frames are built from a background image plus an optional overlay
// and encoded as base64 JPEG on demand.
package camera

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"sync"

	_ "image/gif"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

const (
	frameWidth  = 640
	frameHeight = 480
)

// Camera composites background and overlay into a fixed-size frame.
type Camera struct {
	logger *zap.Logger

	mu         sync.Mutex
	background image.Image
	overlay    image.Image
}

var _ schemas.VirtualCamera = (*Camera)(nil)

// SetBackgroundImage loads the image file as the frame background.
func (c *Camera) SetBackgroundImage(path string) error {
	img, err := loadImage(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.background = img
	c.mu.Unlock()
	return nil
}

// SetOverlayImage loads the image file as the overlay composited above the
// background.
func (c *Camera) SetOverlayImage(path string) error {
	img, err := loadImage(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.overlay = img
	c.mu.Unlock()
	return nil
}

// ClearOverlay removes the overlay layer.
func (c *Camera) ClearOverlay() error {
	c.mu.Lock()
	c.overlay = nil
	c.mu.Unlock()
	return nil
}

// ClearBackground removes the background layer; frames render black.
func (c *Camera) ClearBackground() error {
	c.mu.Lock()
	c.background = nil
	c.mu.Unlock()
	return nil
}

// GetCurrentFrameBase64JPEG composites the current layers and encodes one
// frame at the given JPEG quality.
func (c *Camera) GetCurrentFrameBase64JPEG(quality int) (string, error) {
	c.mu.Lock()
	background, overlay := c.background, c.overlay
	c.mu.Unlock()

	frame := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	if background != nil {
		drawScaled(frame, background)
	}
	if overlay != nil {
		drawScaled(frame, overlay)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("frame encoding failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// drawScaled paints src across the whole frame with nearest-neighbour
// sampling. Fidelity does not matter here; the recognition model only needs
// the gesture shape.
func drawScaled(dst *image.RGBA, src image.Image) {
	bounds := src.Bounds()
	if bounds.Dx() == frameWidth && bounds.Dy() == frameHeight {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
		return
	}
	for y := 0; y < frameHeight; y++ {
		sy := bounds.Min.Y + y*bounds.Dy()/frameHeight
		for x := 0; x < frameWidth; x++ {
			sx := bounds.Min.X + x*bounds.Dx()/frameWidth
			dst.Set(x, y, src.At(sx, sy))
		}
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("camera image open failed: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("camera image decode failed: %w", err)
	}
	return img, nil
}

// Registry hands out one Camera per browsing context so concurrent solves
// never share a feed.
type Registry struct {
	logger *zap.Logger

	mu      sync.Mutex
	cameras map[string]*Camera
}

var _ schemas.CameraRegistry = (*Registry)(nil)

// NewRegistry creates a per-context camera registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger.Named("camera"),
		cameras: make(map[string]*Camera),
	}
}

// Acquire returns the context's camera, creating it on first use.
func (r *Registry) Acquire(contextID string) (schemas.VirtualCamera, error) {
	if contextID == "" {
		return nil, fmt.Errorf("camera registry requires a context id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cam, ok := r.cameras[contextID]; ok {
		return cam, nil
	}
	cam := &Camera{logger: r.logger.With(zap.String("context", contextID))}
	r.cameras[contextID] = cam
	r.logger.Debug("Camera acquired", zap.String("context", contextID))
	return cam, nil
}

// Release discards the context's camera.
func (r *Registry) Release(contextID string) {
	r.mu.Lock()
	delete(r.cameras, contextID)
	r.mu.Unlock()
}
