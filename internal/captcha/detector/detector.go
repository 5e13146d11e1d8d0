// Package detector decides whether an interactive anti-bot challenge is
// present on a page. Four independent heuristics each cast a vote; no single
// heuristic is authoritative, so one being wrong for a given page template
// does not flip the verdict.
package detector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/captcha/assets"
)

const (
	// Confidence is confidenceBase plus confidenceStep per agreeing
	// heuristic, capped at 1; no agreement at all means zero.
	confidenceBase = 0.4
	confidenceStep = 0.2

	// minGridTiles is the smallest tile count treated as an image grid.
	minGridTiles = 9
)

// Detector probes a page for challenge markers. It is read-only and builds a
// fresh result per call.
type Detector struct {
	dom    schemas.DOMInspector
	logger *zap.Logger
}

// New creates a Detector over the given DOM inspector.
func New(dom schemas.DOMInspector, logger *zap.Logger) *Detector {
	return &Detector{
		dom:    dom,
		logger: logger.Named("detector"),
	}
}

// Detect runs the heuristic ensemble against the current page state. An
// invalid context yields an empty zero-confidence result rather than an
// error; upstream callers are expected to no-op on HasChallenge == false.
func (d *Detector) Detect(ctx context.Context, contextID string) schemas.DetectionResult {
	var result schemas.DetectionResult
	if contextID == "" {
		return result
	}

	if err := d.dom.Scan(ctx, contextID, "*"); err != nil {
		d.logger.Debug("DOM scan failed during detection", zap.Error(err))
		return result
	}
	elements, err := d.dom.GetElements(ctx, contextID)
	if err != nil {
		d.logger.Debug("DOM snapshot unavailable during detection", zap.Error(err))
		return result
	}

	agreeing := 0

	if hit, indicators, selectors := d.checkKeywords(elements); hit {
		agreeing++
		result.Indicators = append(result.Indicators, indicators...)
		result.CandidateSelectors = append(result.CandidateSelectors, selectors...)
	}
	if hit, indicators, selectors := d.checkGridStructure(elements); hit {
		agreeing++
		result.Indicators = append(result.Indicators, indicators...)
		result.CandidateSelectors = append(result.CandidateSelectors, selectors...)
	}
	if hit, indicators, selectors := d.checkCanvas(elements); hit {
		agreeing++
		result.Indicators = append(result.Indicators, indicators...)
		result.CandidateSelectors = append(result.CandidateSelectors, selectors...)
	}
	// The iframe check issues targeted scans and therefore runs after the
	// snapshot-based checks have consumed the full scan.
	if hit, indicators, selectors := d.checkProviderIframes(ctx, contextID); hit {
		agreeing++
		result.Indicators = append(result.Indicators, indicators...)
		result.CandidateSelectors = append(result.CandidateSelectors, selectors...)
	}

	if agreeing > 0 {
		result.HasChallenge = true
		result.Confidence = confidenceBase + confidenceStep*float64(agreeing)
		if result.Confidence > 1.0 {
			result.Confidence = 1.0
		}
	}

	d.logger.Debug("Detection complete",
		zap.Bool("has_challenge", result.HasChallenge),
		zap.Float64("confidence", result.Confidence),
		zap.Int("methods_agreeing", agreeing),
		zap.Strings("indicators", result.Indicators),
	)
	return result
}

// checkKeywords looks for challenge phrasing in page text combined with an
// interactive structure (input or image) near it.
func (d *Detector) checkKeywords(elements []schemas.ElementInfo) (bool, []string, []string) {
	var indicators, selectors []string
	hasStructure := false

	for _, el := range elements {
		text := strings.ToLower(el.Text)
		for _, kw := range assets.ChallengeKeywords() {
			if strings.Contains(text, kw) {
				indicators = append(indicators, fmt.Sprintf("keyword match: %q", kw))
				selectors = append(selectors, el.Selector)
				break
			}
		}
		switch el.Tag {
		case "input", "img":
			if markedAsChallenge(el) {
				hasStructure = true
				selectors = append(selectors, el.Selector)
			}
		}
	}

	if len(indicators) == 0 {
		return false, nil, nil
	}
	if hasStructure {
		indicators = append(indicators, "challenge structure near keyword")
	}
	return true, indicators, dedupe(selectors)
}

// checkGridStructure looks for a "select all" instruction or a tile matrix
// of at least 3x3 similarly sized images.
func (d *Detector) checkGridStructure(elements []schemas.ElementInfo) (bool, []string, []string) {
	var indicators, selectors []string

	for _, el := range elements {
		text := strings.ToLower(el.Text)
		for _, kw := range assets.GridKeywords() {
			if strings.Contains(text, kw) {
				indicators = append(indicators, fmt.Sprintf("grid instruction: %q", kw))
				selectors = append(selectors, el.Selector)
				break
			}
		}
	}

	tiles := tileCluster(elements)
	if len(tiles) >= minGridTiles {
		indicators = append(indicators, fmt.Sprintf("tile cluster of %d uniform images", len(tiles)))
		for _, t := range tiles {
			selectors = append(selectors, t.Selector)
		}
	}

	if len(indicators) == 0 {
		return false, nil, nil
	}
	return true, indicators, dedupe(selectors)
}

// checkCanvas flags canvas elements that live inside challenge-marked
// containers; drawn challenges render to canvas rather than img tags.
func (d *Detector) checkCanvas(elements []schemas.ElementInfo) (bool, []string, []string) {
	var indicators, selectors []string
	for _, el := range elements {
		if el.Tag != "canvas" || !el.Visible {
			continue
		}
		if markedAsChallenge(el) {
			indicators = append(indicators, "canvas in challenge context")
			selectors = append(selectors, el.Selector)
		}
	}
	if len(indicators) == 0 {
		return false, nil, nil
	}
	return true, indicators, dedupe(selectors)
}

// checkProviderIframes issues targeted scans for the known provider iframe
// markers. Iframe src attributes are not part of the snapshot, so presence is
// probed through attribute selectors instead.
func (d *Detector) checkProviderIframes(ctx context.Context, contextID string) (bool, []string, []string) {
	var indicators, selectors []string
	for _, provider := range []string{"recaptcha", "cloudflare", "hcaptcha"} {
		for _, marker := range assets.ProviderIframeMarkers(provider) {
			pattern := fmt.Sprintf(`iframe[src*=%q]`, marker)
			if err := d.dom.Scan(ctx, contextID, pattern); err != nil {
				continue
			}
			found, err := d.dom.GetElements(ctx, contextID)
			if err != nil || len(found) == 0 {
				continue
			}
			indicators = append(indicators, fmt.Sprintf("provider iframe: %s (%s)", provider, marker))
			for _, el := range found {
				selectors = append(selectors, el.Selector)
			}
			break
		}
	}
	if len(indicators) == 0 {
		return false, nil, nil
	}
	return true, indicators, dedupe(selectors)
}

// markedAsChallenge reports whether an element's identity strings carry a
// challenge marker.
func markedAsChallenge(el schemas.ElementInfo) bool {
	identity := strings.ToLower(el.Selector + " " + el.ID + " " + el.ClassName)
	for _, marker := range []string{"captcha", "challenge", "verify", "turnstile"} {
		if strings.Contains(identity, marker) {
			return true
		}
	}
	return false
}

// tileCluster returns visible images that share near-identical square
// dimensions, the shape of a selection grid.
func tileCluster(elements []schemas.ElementInfo) []schemas.ElementInfo {
	buckets := make(map[[2]int][]schemas.ElementInfo)
	for _, el := range elements {
		if el.Tag != "img" && el.Tag != "td" && el.Tag != "button" {
			continue
		}
		if !el.Visible || el.Width < 40 || el.Height < 40 {
			continue
		}
		// Bucket by rounded size so tiny rendering differences collapse.
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

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
