package perception

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xkilldash9x/gatecrash/internal/captcha/assets"
)

var (
	alnumRunRegex   = regexp.MustCompile(`[A-Za-z0-9]+`)
	indexRegex      = regexp.MustCompile(`\d+`)
	spacedCharRegex = regexp.MustCompile(`^(?:[A-Za-z0-9][\s,]+){2,}[A-Za-z0-9]$`)
)

// noMatchPhrases mark grid responses meaning "no tile matches". An empty
// index set is a legitimate answer, not an error.
var noMatchPhrases = []string{"none", "empty", "no match", "no images", "no tiles", "nothing"}

// ExtractText distills a free-form perception response into the literal
// challenge answer. Models rarely answer with the bare string, so a sequence
// of increasingly aggressive heuristics is applied until one produces a
// plausible answer:
//
//  1. the response already is a single plausible token
//  2. text following the last colon ("The characters are: AB3K9.")
//  3. a run of single characters separated by spaces ("A B 3 K 9")
//  4. the longest token left after stripping known filler words
//  5. the first maxLen alphanumeric characters as a last resort
//
// It returns "" when no heuristic yields anything usable.
func ExtractText(response string, maxLen int) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = 10
	}

	// 1. Bare answer.
	if token := bareToken(response, maxLen); token != "" {
		return token
	}

	// 2. Colon-prefixed answer.
	if idx := strings.LastIndex(response, ":"); idx >= 0 && idx < len(response)-1 {
		tail := strings.TrimSpace(response[idx+1:])
		tail = strings.Trim(tail, `."'!`)
		if token := bareToken(tail, maxLen); token != "" {
			return token
		}
		if joined := joinSpacedChars(tail); joined != "" {
			return truncate(joined, maxLen)
		}
	}

	// 3. Space-separated character run.
	if joined := joinSpacedChars(response); joined != "" {
		return truncate(joined, maxLen)
	}

	// 4. Filler-word removal.
	if token := longestNonFillerToken(response); token != "" && len(token) <= maxLen {
		return token
	}

	// 5. First-N-characters fallback.
	runs := alnumRunRegex.FindAllString(response, -1)
	if len(runs) == 0 {
		return ""
	}
	return truncate(strings.Join(runs, ""), maxLen)
}

// ParseGridIndices extracts the set of selected tile indices from a grid
// perception response. A "none"-style response parses to an empty set.
// Indices are deduplicated and filtered to [0, gridSize); the returned slice
// is sorted for deterministic downstream behavior (callers shuffle before
// clicking).
func ParseGridIndices(response string, gridSize int) []int {
	lower := strings.ToLower(strings.TrimSpace(response))
	if lower == "" {
		return nil
	}
	for _, phrase := range noMatchPhrases {
		if strings.Contains(lower, phrase) {
			return nil
		}
	}

	seen := make(map[int]bool)
	var indices []int
	for _, m := range indexRegex.FindAllString(lower, -1) {
		n, err := strconv.Atoi(m)
		if err != nil || n < 0 || n >= gridSize || seen[n] {
			continue
		}
		seen[n] = true
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices
}

// bareToken returns the response itself if it is one plausible answer token.
func bareToken(s string, maxLen int) string {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return ""
	}
	trimmed := strings.Trim(s, `."'!`)
	if trimmed == "" || len(trimmed) > maxLen {
		return ""
	}
	if !alnumRunRegex.MatchString(trimmed) || alnumRunRegex.FindString(trimmed) != trimmed {
		return ""
	}
	if isFiller(trimmed) {
		return ""
	}
	return trimmed
}

// joinSpacedChars collapses "A B 3 K 9" style answers into "AB3K9".
func joinSpacedChars(s string) string {
	s = strings.TrimSpace(strings.Trim(s, `."'!`))
	if !spacedCharRegex.MatchString(s) {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		if r != ' ' && r != ',' && r != '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// longestNonFillerToken strips known filler words and returns the longest
// remaining alphanumeric token.
func longestNonFillerToken(s string) string {
	var best string
	for _, token := range alnumRunRegex.FindAllString(s, -1) {
		if isFiller(token) {
			continue
		}
		if len(token) > len(best) {
			best = token
		}
	}
	return best
}

func isFiller(token string) bool {
	lower := strings.ToLower(token)
	for _, w := range assets.FillerWords() {
		if lower == w {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
