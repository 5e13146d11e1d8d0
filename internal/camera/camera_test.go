package camera

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writePNG writes a solid-colour test image and returns its path.
func writePNG(t *testing.T, name string, w, h int, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func decodeFrame(t *testing.T, b64 string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestBlankFrameIsBlack(t *testing.T) {
	cam := &Camera{logger: zap.NewNop()}

	b64, err := cam.GetCurrentFrameBase64JPEG(80)
	require.NoError(t, err)

	frame := decodeFrame(t, b64)
	assert.Equal(t, frameWidth, frame.Bounds().Dx())
	assert.Equal(t, frameHeight, frame.Bounds().Dy())

	r, g, b, _ := frame.At(320, 240).RGBA()
	assert.Less(t, r>>8, uint32(16))
	assert.Less(t, g>>8, uint32(16))
	assert.Less(t, b>>8, uint32(16))
}

func TestBackgroundFillsFrame(t *testing.T) {
	cam := &Camera{logger: zap.NewNop()}
	bg := writePNG(t, "bg.png", 64, 48, color.RGBA{R: 220, A: 255})

	require.NoError(t, cam.SetBackgroundImage(bg))

	frame := decodeFrame(t, mustFrame(t, cam))
	r, g, _, _ := frame.At(10, 10).RGBA()
	assert.Greater(t, r>>8, uint32(180), "frame should carry the red background")
	assert.Less(t, g>>8, uint32(80))
}

func TestOverlayCompositesAboveBackground(t *testing.T) {
	cam := &Camera{logger: zap.NewNop()}
	bg := writePNG(t, "bg.png", frameWidth, frameHeight, color.RGBA{R: 220, A: 255})
	ov := writePNG(t, "ov.png", frameWidth, frameHeight, color.RGBA{G: 220, A: 255})

	require.NoError(t, cam.SetBackgroundImage(bg))
	require.NoError(t, cam.SetOverlayImage(ov))

	frame := decodeFrame(t, mustFrame(t, cam))
	r, g, _, _ := frame.At(320, 240).RGBA()
	assert.Greater(t, g>>8, uint32(180), "overlay should win over the background")
	assert.Less(t, r>>8, uint32(80))

	require.NoError(t, cam.ClearOverlay())
	frame = decodeFrame(t, mustFrame(t, cam))
	r, g, _, _ = frame.At(320, 240).RGBA()
	assert.Greater(t, r>>8, uint32(180), "background should show again after ClearOverlay")
	assert.Less(t, g>>8, uint32(80))
}

func TestClearBackgroundRendersBlack(t *testing.T) {
	cam := &Camera{logger: zap.NewNop()}
	bg := writePNG(t, "bg.png", 32, 32, color.RGBA{B: 220, A: 255})

	require.NoError(t, cam.SetBackgroundImage(bg))
	require.NoError(t, cam.ClearBackground())

	frame := decodeFrame(t, mustFrame(t, cam))
	_, _, b, _ := frame.At(100, 100).RGBA()
	assert.Less(t, b>>8, uint32(16))
}

func TestSetBackgroundImageMissingFile(t *testing.T) {
	cam := &Camera{logger: zap.NewNop()}
	err := cam.SetBackgroundImage(filepath.Join(t.TempDir(), "absent.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open failed")
}

func TestRegistryIsolatesContexts(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	camA, err := reg.Acquire("tab-a")
	require.NoError(t, err)
	camB, err := reg.Acquire("tab-b")
	require.NoError(t, err)
	assert.NotSame(t, camA, camB)

	again, err := reg.Acquire("tab-a")
	require.NoError(t, err)
	assert.Same(t, camA, again)

	reg.Release("tab-a")
	fresh, err := reg.Acquire("tab-a")
	require.NoError(t, err)
	assert.NotSame(t, camA, fresh)
}

func TestRegistryRejectsEmptyContext(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	_, err := reg.Acquire("")
	assert.Error(t, err)
}

func mustFrame(t *testing.T, cam *Camera) string {
	t.Helper()
	b64, err := cam.GetCurrentFrameBase64JPEG(90)
	require.NoError(t, err)
	return b64
}
