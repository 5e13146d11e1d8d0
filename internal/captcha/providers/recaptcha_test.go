package providers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// tileEl places a visible grid tile at row-major coordinates for index i in a
// 3-wide layout.
func tileEl(selector string, i int) schemas.ElementInfo {
	return schemas.ElementInfo{
		Selector: selector,
		Tag:      "td",
		X:        float64(100 + (i%3)*110),
		Y:        float64(200 + (i/3)*110),
		Width:    100, Height: 100,
		Visible: true,
	}
}

func TestResolveGridTilesTruncatesToSupportedGeometry(t *testing.T) {
	// 12 visible tiles is neither 3x3 nor 4x4; the grid must settle on 9
	// with exactly 9 selectors, never 12 selectors against size 9.
	els := make([]schemas.ElementInfo, 0, 12)
	for i := 0; i < 12; i++ {
		els = append(els, tileEl(fmt.Sprintf("#tile-%d", i), i))
	}

	selectors, size := resolveGridTiles(els)
	assert.Equal(t, gridSizeSmall, size)
	assert.Len(t, selectors, size)
}

func TestResolveGridTilesOrdersRowMajor(t *testing.T) {
	els := []schemas.ElementInfo{
		tileEl("#t4", 4), tileEl("#t0", 0), tileEl("#t8", 8),
		tileEl("#t2", 2), tileEl("#t6", 6), tileEl("#t1", 1),
		tileEl("#t7", 7), tileEl("#t3", 3), tileEl("#t5", 5),
	}

	selectors, size := resolveGridTiles(els)
	require.Equal(t, gridSizeSmall, size)
	assert.Equal(t, []string{"#t0", "#t1", "#t2", "#t3", "#t4", "#t5", "#t6", "#t7", "#t8"}, selectors)
}

func TestResolveGridTilesRejectsPartialGrid(t *testing.T) {
	els := make([]schemas.ElementInfo, 0, 8)
	for i := 0; i < 8; i++ {
		els = append(els, tileEl(fmt.Sprintf("#tile-%d", i), i))
	}

	selectors, size := resolveGridTiles(els)
	assert.Nil(t, selectors)
	assert.Zero(t, size)
}

func TestResolveGridTilesIgnoresInvisibleTiles(t *testing.T) {
	els := make([]schemas.ElementInfo, 0, 20)
	for i := 0; i < 17; i++ {
		els = append(els, tileEl(fmt.Sprintf("#tile-%d", i), i))
	}
	hidden := tileEl("#hidden", 17)
	hidden.Visible = false
	els = append(els, hidden)

	selectors, size := resolveGridTiles(els)
	assert.Equal(t, gridSizeLarge, size)
	require.Len(t, selectors, size)
	assert.NotContains(t, selectors, "#hidden")
}

func TestRecaptchaGridClassificationKeepsSelectorCountAndSizeInAgreement(t *testing.T) {
	// The bframe serves 12 visible tiles; the resulting classification must
	// still satisfy len(GridItemSelectors) == GridSize.
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			if pattern == "td.rc-imageselect-tile, .rc-image-tile-wrapper" {
				els := make([]schemas.ElementInfo, 0, 12)
				for i := 0; i < 12; i++ {
					els = append(els, tileEl(fmt.Sprintf("#rc-tile-%d", i), i))
				}
				return els
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, &fakePerception{})
	solver := NewRecaptchaSolver(env)

	grid := solver.gridClassification(context.Background(), "ctx-1", schemas.ClassificationResult{})

	assert.Equal(t, schemas.VariantImageSelection, grid.Variant)
	assert.Equal(t, gridSizeSmall, grid.GridSize)
	assert.Len(t, grid.GridItemSelectors, grid.GridSize)
	assert.Equal(t, "#recaptcha-verify-button", grid.SubmitSelector)
	assert.Equal(t, "#recaptcha-reload-button", grid.SkipSelector)
}

func TestCloudflareGridClassificationKeepsSelectorCountAndSizeInAgreement(t *testing.T) {
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			if pattern == ".task-image, .task-grid .image" {
				els := make([]schemas.ElementInfo, 0, 16)
				for i := 0; i < 16; i++ {
					els = append(els, tileEl(fmt.Sprintf("#task-%d", i), i))
				}
				return els
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, &fakePerception{})
	solver := NewCloudflareSolver(env)

	grid := solver.gridClassification(context.Background(), "ctx-1", schemas.ClassificationResult{})

	assert.Equal(t, schemas.VariantImageSelection, grid.Variant)
	assert.Equal(t, gridSizeLarge, grid.GridSize)
	assert.Len(t, grid.GridItemSelectors, grid.GridSize)
}

func TestGridClassificationRespectsClassifierSelectors(t *testing.T) {
	// When the classifier already resolved a grid, the provider must not
	// rebuild it from stock selectors.
	env := newTestEnv(&fakeDOM{}, &fakeInput{}, &fakePerception{})
	solver := NewRecaptchaSolver(env)

	classified := schemas.ClassificationResult{
		Variant:           schemas.VariantImageSelection,
		GridSize:          gridSizeSmall,
		GridItemSelectors: []string{"#a", "#b", "#c", "#d", "#e", "#f", "#g", "#h", "#i"},
		ContainerSelector: "#my-grid",
	}
	grid := solver.gridClassification(context.Background(), "ctx-1", classified)

	assert.Equal(t, classified.GridItemSelectors, grid.GridItemSelectors)
	assert.Equal(t, classified.GridSize, grid.GridSize)
	assert.Equal(t, "#my-grid", grid.ContainerSelector)
}
