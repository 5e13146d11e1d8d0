package providers

import (
	"strings"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/captcha/assets"
)

// gestureMatch pairs a recognized gesture with the page element that
// requested it.
type gestureMatch struct {
	Gesture assets.Gesture
	Element schemas.ElementInfo
}

// findGestureImage scans a DOM snapshot for image elements whose alt text
// names a known gesture. When several gesture images are present at once the
// active one is the element with the shortest CSS class string: inactive
// images carry an extra hidden-state class suffix, and the class names
// themselves are obfuscated so no stronger signal exists. Known brittleness;
// revisit if the widget markup ever exposes a state attribute.
func findGestureImage(elements []schemas.ElementInfo) *gestureMatch {
	var best *gestureMatch
	for i := range elements {
		el := &elements[i]
		if !strings.EqualFold(el.Tag, "img") || el.AltText == "" {
			continue
		}
		gesture, ok := matchGesture(el.AltText)
		if !ok {
			continue
		}
		if best == nil || len(el.ClassName) < len(best.Element.ClassName) {
			best = &gestureMatch{Gesture: gesture, Element: *el}
		}
	}
	return best
}

// matchGesture matches alt text against the embedded gesture vocabulary,
// case-insensitively, keyword by keyword.
func matchGesture(altText string) (assets.Gesture, bool) {
	alt := strings.ToLower(altText)
	for _, gesture := range assets.Gestures() {
		for _, keyword := range gesture.Keywords {
			if strings.Contains(alt, strings.ToLower(keyword)) {
				return gesture, true
			}
		}
	}
	return assets.Gesture{}, false
}
