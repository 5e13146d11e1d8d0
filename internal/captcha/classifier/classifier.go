// Package classifier determines the variant of a detected challenge and
// extracts the selector set needed to operate it. Variant classifiers run
// independently and compete on confidence; each one also looks for evidence
// that contradicts its own hypothesis and lowers its confidence accordingly,
// because structurally similar templates are indistinguishable from DOM shape
// alone.
package classifier

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/captcha/assets"
)

// Confidence model. A variant wins only above acceptThreshold, and the text
// variant additionally has to beat the image variant outright.
const (
	acceptThreshold = 0.5

	// Base evidence weights for the text classifier.
	textInputWeight     = 0.35
	textImageWeight     = 0.25
	textContainerWeight = 0.15
	textKeywordWeight   = 0.15

	// Base evidence weights for the image classifier.
	gridTilesWeight       = 0.45
	gridInstructionWeight = 0.25
	gridContainerWeight   = 0.10

	// contradictionPenalty is subtracted when a classifier finds structural
	// evidence against its own hypothesis (e.g. a text input on a page it
	// wants to call an image grid).
	contradictionPenalty = 0.4

	// checkboxBaseConfidence is deliberately modest: the checkbox variant is
	// the last-resort fallback, chosen only when neither competing
	// classifier clears the threshold.
	checkboxBaseConfidence = 0.6

	gridSizeSmall = 9
	gridSizeLarge = 16
)

// Classifier resolves challenge variants from DOM snapshots.
type Classifier struct {
	dom    schemas.DOMInspector
	logger *zap.Logger
}

// New creates a Classifier over the given DOM inspector.
func New(dom schemas.DOMInspector, logger *zap.Logger) *Classifier {
	return &Classifier{
		dom:    dom,
		logger: logger.Named("classifier"),
	}
}

// Classify determines the challenge variant. It requires a positive
// detection; without one it returns a zero-confidence Unknown result.
func (c *Classifier) Classify(ctx context.Context, contextID string, detection schemas.DetectionResult) schemas.ClassificationResult {
	unknown := schemas.ClassificationResult{Variant: schemas.VariantUnknown}
	if !detection.HasChallenge || contextID == "" {
		return unknown
	}

	if err := c.dom.Scan(ctx, contextID, "*"); err != nil {
		c.logger.Debug("DOM scan failed during classification", zap.Error(err))
		return unknown
	}
	elements, err := c.dom.GetElements(ctx, contextID)
	if err != nil {
		c.logger.Debug("DOM snapshot unavailable during classification", zap.Error(err))
		return unknown
	}

	textResult := c.classifyText(elements)
	imageResult := c.classifyImage(elements)

	c.logger.Debug("Variant classifiers scored",
		zap.Float64("text_confidence", textResult.Confidence),
		zap.Float64("image_confidence", imageResult.Confidence),
	)

	switch {
	case textResult.Confidence > imageResult.Confidence && textResult.Confidence > acceptThreshold:
		return textResult
	case imageResult.Confidence > acceptThreshold:
		return imageResult
	}

	// Last resort: scan the detection's candidate selectors for checkbox
	// markers and keep the best checkbox interpretation.
	if checkbox := c.classifyCheckbox(elements, detection.CandidateSelectors); checkbox.Confidence > 0 {
		return checkbox
	}
	return unknown
}

// classifyText probes for a character-entry challenge: an input field paired
// with a distorted text image.
func (c *Classifier) classifyText(elements []schemas.ElementInfo) schemas.ClassificationResult {
	result := schemas.ClassificationResult{Variant: schemas.VariantTextBased}

	input := findFirst(elements, func(el schemas.ElementInfo) bool {
		return el.Tag == "input" && challengeMarked(el)
	})
	image := findFirst(elements, func(el schemas.ElementInfo) bool {
		return (el.Tag == "img" || el.Tag == "canvas") && challengeMarked(el) && el.Visible
	})
	container := findFirst(elements, func(el schemas.ElementInfo) bool {
		return (el.Tag == "div" || el.Tag == "form") && challengeMarked(el)
	})

	if input != nil {
		result.Confidence += textInputWeight
		result.InputSelector = input.Selector
	}
	if image != nil {
		result.Confidence += textImageWeight
		result.ImageSelector = image.Selector
	}
	if container != nil {
		result.Confidence += textContainerWeight
		result.ContainerSelector = container.Selector
	}
	if target := instructionText(elements, assets.ChallengeKeywords()); target != "" {
		result.Confidence += textKeywordWeight
		result.TargetDescription = target
	}

	// A sizable uniform tile cluster argues against text entry.
	if len(uniformTiles(elements)) >= gridSizeSmall && input == nil {
		result.Confidence -= contradictionPenalty
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}

	result.SubmitSelector = controlSelector(elements, []string{"submit", "verify", "check"})
	result.RefreshSelector = controlSelector(elements, []string{"refresh", "reload", "new code", "new captcha"})
	result.HasRefresh = result.RefreshSelector != ""
	return result
}

// classifyImage probes for a tile-selection challenge and, when found, fixes
// the grid size and enumerates per-tile selectors by index.
func (c *Classifier) classifyImage(elements []schemas.ElementInfo) schemas.ClassificationResult {
	result := schemas.ClassificationResult{Variant: schemas.VariantImageSelection}

	tiles := uniformTiles(elements)
	if len(tiles) >= gridSizeSmall {
		result.Confidence += gridTilesWeight
	}
	if target := instructionText(elements, assets.GridKeywords()); target != "" {
		result.Confidence += gridInstructionWeight
		result.TargetDescription = target
	}
	container := findFirst(elements, func(el schemas.ElementInfo) bool {
		return (el.Tag == "div" || el.Tag == "table") && challengeMarked(el)
	})
	if container != nil {
		result.Confidence += gridContainerWeight
		result.ContainerSelector = container.Selector
	}

	// Cross-evidence: a text input inside the challenge strongly implies
	// this is NOT an image-selection task, whatever the tile count says.
	hasTextInput := findFirst(elements, func(el schemas.ElementInfo) bool {
		return el.Tag == "input" && challengeMarked(el)
	}) != nil
	if hasTextInput {
		result.Confidence -= contradictionPenalty
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}

	if len(tiles) >= gridSizeSmall {
		size := gridSizeSmall
		if len(tiles) >= gridSizeLarge {
			size = gridSizeLarge
		}
		// Row-major order so overlay indices match visual positions.
		sort.Slice(tiles, func(i, j int) bool {
			if tiles[i].Y != tiles[j].Y {
				return tiles[i].Y < tiles[j].Y
			}
			return tiles[i].X < tiles[j].X
		})
		result.GridSize = size
		result.GridItemSelectors = make([]string, 0, size)
		for _, t := range tiles[:size] {
			result.GridItemSelectors = append(result.GridItemSelectors, t.Selector)
		}
	} else {
		// Without a resolvable grid the image hypothesis cannot be acted
		// on, regardless of other evidence.
		result.Confidence = 0
	}

	result.SubmitSelector = controlSelector(elements, []string{"submit", "verify"})
	result.SkipSelector = controlSelector(elements, []string{"skip", "next"})
	result.HasSkip = result.SkipSelector != ""
	return result
}

// classifyCheckbox runs the checkbox classifier over each candidate selector
// from detection and keeps the best hit.
func (c *Classifier) classifyCheckbox(elements []schemas.ElementInfo, candidates []string) schemas.ClassificationResult {
	best := schemas.ClassificationResult{Variant: schemas.VariantUnknown}

	for _, candidate := range candidates {
		lower := strings.ToLower(candidate)
		matched := false
		for _, marker := range assets.CheckboxMarkers() {
			if strings.Contains(lower, marker) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		result := schemas.ClassificationResult{
			Variant:          schemas.VariantCheckbox,
			Confidence:       checkboxBaseConfidence,
			CheckboxSelector: candidate,
		}
		// Corroborating live element raises confidence above a bare
		// selector-string match.
		if el := findBySelector(elements, candidate); el != nil && el.Visible {
			result.Confidence += 0.2
		}
		if result.Confidence > best.Confidence {
			best = result
		}
	}
	return best
}

// -- snapshot helpers --

func challengeMarked(el schemas.ElementInfo) bool {
	identity := strings.ToLower(el.Selector + " " + el.ID + " " + el.ClassName)
	for _, marker := range []string{"captcha", "challenge", "verify"} {
		if strings.Contains(identity, marker) {
			return true
		}
	}
	return false
}

func findFirst(elements []schemas.ElementInfo, match func(schemas.ElementInfo) bool) *schemas.ElementInfo {
	for i := range elements {
		if match(elements[i]) {
			return &elements[i]
		}
	}
	return nil
}

func findBySelector(elements []schemas.ElementInfo, selector string) *schemas.ElementInfo {
	for i := range elements {
		if elements[i].Selector == selector {
			return &elements[i]
		}
	}
	return nil
}

// instructionText returns the text of the first element containing one of
// the given keyword fragments.
func instructionText(elements []schemas.ElementInfo, keywords []string) string {
	for _, el := range elements {
		text := strings.ToLower(el.Text)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return strings.TrimSpace(el.Text)
			}
		}
	}
	return ""
}

// controlSelector finds a button-like element whose identity or label
// matches one of the given words.
func controlSelector(elements []schemas.ElementInfo, words []string) string {
	for _, el := range elements {
		if el.Tag != "button" && el.Tag != "a" && el.Tag != "input" {
			continue
		}
		identity := strings.ToLower(el.Selector + " " + el.ID + " " + el.ClassName + " " + el.Text)
		for _, w := range words {
			if strings.Contains(identity, w) {
				return el.Selector
			}
		}
	}
	return ""
}

// uniformTiles returns visible elements sharing near-identical dimensions,
// the shape of a selection grid.
func uniformTiles(elements []schemas.ElementInfo) []schemas.ElementInfo {
	buckets := make(map[[2]int][]schemas.ElementInfo)
	for _, el := range elements {
		if el.Tag != "img" && el.Tag != "td" && el.Tag != "button" {
			continue
		}
		if !el.Visible || el.Width < 40 || el.Height < 40 {
			continue
		}
		key := [2]int{int(el.Width/8) * 8, int(el.Height/8) * 8}
		buckets[key] = append(buckets[key], el)
	}

	var best []schemas.ElementInfo
	for _, group := range buckets {
		if len(group) > len(best) {
			best = group
		}
	}
	return best
}
