package schemas

// ChallengeVariant identifies the modality of a classified challenge.
type ChallengeVariant string

const (
	VariantUnknown        ChallengeVariant = "unknown"
	VariantTextBased      ChallengeVariant = "text_based"
	VariantImageSelection ChallengeVariant = "image_selection"
	VariantCheckbox       ChallengeVariant = "checkbox"
)

// ProviderType identifies the solving strategy family for a challenge.
type ProviderType string

const (
	// ProviderOwl is the generic/internal grid and text handler. It is the
	// cheapest, most conservative strategy and the fallback for dispatch ties.
	ProviderOwl        ProviderType = "owl"
	ProviderRecaptcha  ProviderType = "recaptcha"
	ProviderCloudflare ProviderType = "cloudflare"
	// ProviderHCaptcha delegates to the Cloudflare hybrid solver, since
	// Cloudflare embeds hCaptcha for its image challenges.
	ProviderHCaptcha ProviderType = "hcaptcha"
	ProviderAuto     ProviderType = "auto"
	ProviderUnknown  ProviderType = "unknown"
)

// GestureType names a hand gesture requested by the reCAPTCHA liveness
// sub-protocol.
type GestureType string

const (
	GestureRaisedHand   GestureType = "raised_hand"
	GestureClosedFist   GestureType = "closed_fist"
	GestureThumbsUp     GestureType = "thumbs_up"
	GestureThumbsDown   GestureType = "thumbs_down"
	GesturePeaceSign    GestureType = "peace_sign"
	GesturePointingUp   GestureType = "pointing_up"
	GestureThreeFingers GestureType = "three_fingers"
	GestureFourFingers  GestureType = "four_fingers"
	GestureOpenPalm     GestureType = "open_palm"
	GestureUnknown      GestureType = "unknown"
)

// DetectionResult is the verdict of the detector ensemble. It is built fresh
// for every check and never cached.
type DetectionResult struct {
	HasChallenge       bool     `json:"has_challenge"`
	Confidence         float64  `json:"confidence"`
	Indicators         []string `json:"indicators,omitempty"`
	CandidateSelectors []string `json:"candidate_selectors,omitempty"`
}

// ClassificationResult describes the variant of a detected challenge and the
// selector set needed to operate it.
type ClassificationResult struct {
	Variant    ChallengeVariant `json:"variant"`
	Confidence float64          `json:"confidence"`

	ContainerSelector string `json:"container_selector,omitempty"`
	ImageSelector     string `json:"image_selector,omitempty"`
	InputSelector     string `json:"input_selector,omitempty"`
	SubmitSelector    string `json:"submit_selector,omitempty"`
	RefreshSelector   string `json:"refresh_selector,omitempty"`
	SkipSelector      string `json:"skip_selector,omitempty"`
	CheckboxSelector  string `json:"checkbox_selector,omitempty"`

	// GridSize is 9 for a 3x3 layout, 16 for 4x4. Zero until an image
	// classification fixes it, after which len(GridItemSelectors) == GridSize.
	GridSize          int      `json:"grid_size,omitempty"`
	GridItemSelectors []string `json:"grid_item_selectors,omitempty"`

	TargetDescription string `json:"target_description,omitempty"`
	HasRefresh        bool   `json:"has_refresh"`
	HasSkip           bool   `json:"has_skip"`
}

// SolveResult is the outcome of one Solve invocation. It is the only channel
// by which failure information crosses the solver boundary.
type SolveResult struct {
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	Attempts   int     `json:"attempts"`

	SelectedIndices []int  `json:"selected_indices,omitempty"`
	TargetDetected  string `json:"target_detected,omitempty"`

	// NeedsSkip and NeedsRefresh tell the caller which remedy remained
	// unconsumed when the attempt budget ran out, so it can escalate.
	NeedsSkip    bool   `json:"needs_skip"`
	NeedsRefresh bool   `json:"needs_refresh"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ElementInfo is one entry in a DOM scan snapshot.
type ElementInfo struct {
	Selector  string  `json:"selector"`
	ID        string  `json:"id,omitempty"`
	ClassName string  `json:"class_name,omitempty"`
	Tag       string  `json:"tag"`
	Text      string  `json:"text,omitempty"`
	AltText   string  `json:"alt_text,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Visible   bool    `json:"visible"`
}

// Center returns the midpoint of the element's bounding box.
func (e ElementInfo) Center() (x, y float64) {
	return e.X + e.Width/2, e.Y + e.Height/2
}

// PerceptionResult is the raw outcome of a vision-language completion.
type PerceptionResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}
