package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderIframeMarkersLoaded(t *testing.T) {
	for _, provider := range []string{"recaptcha", "cloudflare", "hcaptcha"} {
		markers := ProviderIframeMarkers(provider)
		assert.NotEmpty(t, markers, provider)
	}
	assert.Contains(t, ProviderIframeMarkers("recaptcha"), "google.com/recaptcha")
	assert.Contains(t, ProviderIframeMarkers("cloudflare"), "challenges.cloudflare.com")
	assert.Empty(t, ProviderIframeMarkers("nosuchprovider"))
}

func TestKeywordTablesLoaded(t *testing.T) {
	assert.NotEmpty(t, ChallengeKeywords())
	assert.NotEmpty(t, GridKeywords())
	assert.NotEmpty(t, CheckboxMarkers())
	assert.NotEmpty(t, FillerWords())
	assert.Contains(t, SuccessTokens(), "verified")
}

func TestGestureVocabularyComplete(t *testing.T) {
	gs := Gestures()
	require.Len(t, gs, 9)

	seen := make(map[string]bool)
	for _, g := range gs {
		assert.NotEmpty(t, g.Keywords, string(g.Name))
		assert.NotEmpty(t, g.Image, string(g.Name))
		assert.False(t, seen[string(g.Name)], "duplicate gesture %q", g.Name)
		seen[string(g.Name)] = true
	}
}
