package classifier

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

type fakeDOM struct {
	elements []schemas.ElementInfo
}

func (d *fakeDOM) Scan(ctx context.Context, contextID, pattern string) error { return nil }

func (d *fakeDOM) GetElements(ctx context.Context, contextID string) ([]schemas.ElementInfo, error) {
	return d.elements, nil
}

func el(selector, tag, text string, w, h float64) schemas.ElementInfo {
	return schemas.ElementInfo{
		Selector: selector, Tag: tag, Text: text,
		X: 10, Y: 10, Width: w, Height: h, Visible: true,
	}
}

func tileGrid(n int) []schemas.ElementInfo {
	tiles := make([]schemas.ElementInfo, 0, n)
	perRow := 3
	if n > 9 {
		perRow = 4
	}
	for i := 0; i < n; i++ {
		tile := el(fmt.Sprintf("td.tile:nth-of-type(%d)", i+1), "td", "", 100, 100)
		tile.X = float64((i % perRow) * 110)
		tile.Y = float64((i / perRow) * 110)
		tiles = append(tiles, tile)
	}
	return tiles
}

func detected() schemas.DetectionResult {
	return schemas.DetectionResult{HasChallenge: true, Confidence: 0.8}
}

func classify(t *testing.T, elements []schemas.ElementInfo, detection schemas.DetectionResult) schemas.ClassificationResult {
	t.Helper()
	c := New(&fakeDOM{elements: elements}, zap.NewNop())
	return c.Classify(context.Background(), "ctx-1", detection)
}

func TestClassifyRequiresPositiveDetection(t *testing.T) {
	result := classify(t, tileGrid(9), schemas.DetectionResult{HasChallenge: false})
	assert.Equal(t, schemas.VariantUnknown, result.Variant)
	assert.Zero(t, result.Confidence)
}

func TestClassifyTextChallenge(t *testing.T) {
	page := []schemas.ElementInfo{
		el("div.captcha-box", "div", "Type the characters shown below", 400, 200),
		el("img#captcha-image", "img", "", 200, 70),
		el("input#captcha-answer", "input", "", 200, 30),
		el("button#submit-btn", "button", "Submit", 100, 30),
		el("a.reload-link", "a", "Get a new code", 100, 20),
	}

	result := classify(t, page, detected())

	require.Equal(t, schemas.VariantTextBased, result.Variant)
	assert.Greater(t, result.Confidence, 0.5)
	assert.Equal(t, "input#captcha-answer", result.InputSelector)
	assert.Equal(t, "img#captcha-image", result.ImageSelector)
	assert.Equal(t, "button#submit-btn", result.SubmitSelector)
	assert.True(t, result.HasRefresh)
	assert.Equal(t, "a.reload-link", result.RefreshSelector)
}

func TestClassifyImageGrid(t *testing.T) {
	page := append([]schemas.ElementInfo{
		el("div.challenge-grid", "div", "", 340, 340),
		el("div.prompt", "div", "Select all images with traffic lights", 340, 40),
	}, tileGrid(9)...)

	result := classify(t, page, detected())

	require.Equal(t, schemas.VariantImageSelection, result.Variant)
	assert.Greater(t, result.Confidence, 0.5)
	assert.Equal(t, 9, result.GridSize)
	require.Len(t, result.GridItemSelectors, 9)
	assert.Contains(t, result.TargetDescription, "traffic lights")
}

func TestClassifyLargeGrid(t *testing.T) {
	page := append([]schemas.ElementInfo{
		el("div.prompt", "div", "click each image containing a bus", 440, 40),
	}, tileGrid(16)...)

	result := classify(t, page, detected())

	require.Equal(t, schemas.VariantImageSelection, result.Variant)
	assert.Equal(t, 16, result.GridSize)
	assert.Len(t, result.GridItemSelectors, 16)
}

func TestClassifyGridSelectorsAreRowMajor(t *testing.T) {
	page := append([]schemas.ElementInfo{
		el("div.prompt", "div", "select all squares with signs", 340, 40),
	}, tileGrid(9)...)
	// Present the tiles out of visual order; classification must re-sort.
	page[1], page[5] = page[5], page[1]

	result := classify(t, page, detected())

	require.Equal(t, schemas.VariantImageSelection, result.Variant)
	require.Len(t, result.GridItemSelectors, 9)
	assert.Equal(t, "td.tile:nth-of-type(1)", result.GridItemSelectors[0])
	assert.Equal(t, "td.tile:nth-of-type(9)", result.GridItemSelectors[8])
}

func TestContradictoryEvidenceFavorsText(t *testing.T) {
	// A page exposing both a marked text input and a 9-tile grid: the
	// cross-evidence rule must pull the image confidence below threshold so
	// the text variant wins.
	page := append([]schemas.ElementInfo{
		el("div.captcha-panel", "div", "Type the characters to continue", 400, 400),
		el("img.captcha-render", "img", "", 200, 70),
		el("input#captchaInput", "input", "", 200, 30),
	}, tileGrid(9)...)

	result := classify(t, page, detected())

	assert.Equal(t, schemas.VariantTextBased, result.Variant)
	assert.Equal(t, "input#captchaInput", result.InputSelector)
}

func TestClassifyFallsBackToCheckbox(t *testing.T) {
	page := []schemas.ElementInfo{
		el("div.recaptcha-checkbox", "div", "", 30, 30),
		el("span.label", "span", "I am not a robot", 160, 30),
	}
	detection := detected()
	detection.CandidateSelectors = []string{"div.recaptcha-checkbox"}

	result := classify(t, page, detection)

	require.Equal(t, schemas.VariantCheckbox, result.Variant)
	assert.Equal(t, "div.recaptcha-checkbox", result.CheckboxSelector)
	assert.GreaterOrEqual(t, result.Confidence, 0.6)
}

func TestClassifyUnknownWhenNothingMatches(t *testing.T) {
	page := []schemas.ElementInfo{
		el("h1", "h1", "Order confirmation", 500, 40),
	}
	result := classify(t, page, detected())
	assert.Equal(t, schemas.VariantUnknown, result.Variant)
}
