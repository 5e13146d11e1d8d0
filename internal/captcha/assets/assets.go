// Package assets holds the data tables the pipeline matches against:
// provider iframe markers, challenge keywords, success tokens, filler words
// and the liveness gesture vocabulary. They are configuration, not logic, and
// are kept in embedded JSON so they can be updated without touching the state
// machines.
package assets

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

//go:embed data/markers.json
var markersRaw []byte

//go:embed data/gestures.json
var gesturesRaw []byte

// Gesture binds a liveness gesture to the alt-text keywords that identify it
// and the reference image shown on the virtual camera feed.
type Gesture struct {
	Name     schemas.GestureType `json:"name"`
	Keywords []string            `json:"keywords"`
	Image    string              `json:"image"`
}

type markerTables struct {
	ProviderIframes   map[string][]string `json:"provider_iframes"`
	ChallengeKeywords []string            `json:"challenge_keywords"`
	GridKeywords      []string            `json:"grid_keywords"`
	CheckboxMarkers   []string            `json:"checkbox_markers"`
	SuccessTokens     []string            `json:"success_tokens"`
	FillerWords       []string            `json:"filler_words"`
}

var (
	markers  markerTables
	gestures []Gesture
)

func init() {
	if err := json.Unmarshal(markersRaw, &markers); err != nil {
		panic(fmt.Sprintf("assets: malformed markers.json: %v", err))
	}
	if err := json.Unmarshal(gesturesRaw, &gestures); err != nil {
		panic(fmt.Sprintf("assets: malformed gestures.json: %v", err))
	}
}

// ProviderIframeMarkers returns the iframe src substrings identifying the
// named provider ("recaptcha", "cloudflare", "hcaptcha").
func ProviderIframeMarkers(provider string) []string {
	return markers.ProviderIframes[provider]
}

// ChallengeKeywords returns page-text fragments that indicate an interactive
// challenge is present.
func ChallengeKeywords() []string { return markers.ChallengeKeywords }

// GridKeywords returns instruction fragments typical of image-grid tasks.
func GridKeywords() []string { return markers.GridKeywords }

// CheckboxMarkers returns selector/text fragments marking "I am not a robot"
// style checkboxes.
func CheckboxMarkers() []string { return markers.CheckboxMarkers }

// SuccessTokens returns text fragments that signal a cleared challenge.
func SuccessTokens() []string { return markers.SuccessTokens }

// FillerWords returns prose words stripped from perception responses before
// answer extraction.
func FillerWords() []string { return markers.FillerWords }

// Gestures returns the liveness gesture vocabulary.
func Gestures() []Gesture { return gestures }
