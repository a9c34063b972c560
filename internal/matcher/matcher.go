// Package matcher scores how likely a scraped competitor listing refers to
// the same product as a catalog item.
//
// The matcher is intentionally permissive: it favors recall over precision
// because downstream aggregation is statistical and a few false positives
// shift a median far less than a systematically starved sample would.
// Tighten MinSimilarity only together with the aggregation assumptions.
package matcher

import (
	"fmt"
	"strings"
	"unicode"
)

// Scoring thresholds. Named here so control flow stays free of magic numbers.
const (
	// MinSimilarity is the floor below which a title-similarity signal alone
	// does not produce a match.
	MinSimilarity = 0.1
)

// Result is the outcome of matching one raw observation against one catalog
// item.
type Result struct {
	Matched   bool
	Score     float64
	Reasoning string
}

// Matcher combines two independent signals: category-token containment and
// title similarity.
type Matcher struct {
	minSimilarity float64
}

// New returns a matcher with the default similarity floor.
func New() *Matcher {
	return &Matcher{minSimilarity: MinSimilarity}
}

// Match evaluates a catalog item against a scraped title and brand.
// Acceptance rule: category containment OR similarity >= the floor. The
// returned score is always the similarity signal; a category-only match
// scores whatever similarity computed (possibly 0).
func (m *Matcher) Match(itemName, itemCategory, title string) Result {
	similarity := Similarity(itemName, title)
	category := CategoryContains(itemCategory, title)

	matched := category || similarity >= m.minSimilarity
	if !matched {
		return Result{Reasoning: "below similarity floor"}
	}

	var reasons []string
	if category {
		reasons = append(reasons, fmt.Sprintf("category token %q in title", strings.ToLower(itemCategory)))
	}
	if similarity >= m.minSimilarity {
		reasons = append(reasons, fmt.Sprintf("title similarity %.2f", similarity))
	}

	return Result{
		Matched:   true,
		Score:     similarity,
		Reasoning: strings.Join(reasons, "; "),
	}
}

// CategoryContains reports whether the observation title contains the catalog
// item's category token, case-insensitively. An empty category never matches.
func CategoryContains(category, title string) bool {
	category = strings.TrimSpace(strings.ToLower(category))
	if category == "" {
		return false
	}
	return strings.Contains(normalize(title), category)
}

// Similarity computes token-overlap similarity (Jaccard index) between two
// strings after normalization. Returns a value in [0, 1].
func Similarity(a, b string) float64 {
	wa := tokenSet(a)
	wb := tokenSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	return float64(intersection) / float64(union)
}

// normalize lowercases and strips everything except letters, digits, and
// spaces.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalize(s)) {
		set[w] = struct{}{}
	}
	return set
}
