// Package scoring ranks stored fragments against a query. The score is a
// weighted blend of content-type suitability, text similarity, information
// density, recency/usage and category match, added on top of the fragment's
// stored base relevance. Scores live in [0, 2] during ranking; only the
// persisted base relevance is clamped to [0, 1].
package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/sethgregory/memgate/pkg/store"
)

// Sub-score weights. They sum to 1.0.
const (
	weightContentType = 0.40
	weightSimilarity  = 0.25
	weightDensity     = 0.20
	weightRecency     = 0.10
	weightCategory    = 0.05
)

// MaxScore bounds the ranking score.
const MaxScore = 2.0

// ContentType classifies what a fragment's text actually carries.
type ContentType string

const (
	ContentInformational    ContentType = "informational"
	ContentMixed            ContentType = "mixed"
	ContentInterrogative    ContentType = "interrogative"
	ContentAssistantFailure ContentType = "assistant_failure"
)

// ScoreError marks a fragment whose content cannot be scored. Callers drop
// the fragment from ranking and continue.
type ScoreError struct {
	FragmentID string
	Reason     string
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("unscorable fragment %s: %s", e.FragmentID, e.Reason)
}

var (
	failurePatterns = []string{
		"no information found", "i don't have any information",
		"i do not have information", "i couldn't find", "i could not find",
		"nothing in my memory", "no relevant memory", "unable to recall",
	}
	possessiveStatementRegex = regexp.MustCompile(`(?i)\b(?:my|our|their|his|her)\s+\w+\s+(?:is|are|was|were|has|have)\b|\bi\s+(?:am|have|had|own|use|work|live|prefer|like|love)\b`)
	questionLeadRegex        = regexp.MustCompile(`(?i)^\s*(?:what|why|how|when|where|who|can|could|would|do|does|did|is|are|am)\b`)
)

// stopWords are excluded from similarity comparisons.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "she": {}, "so": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"why": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// specificityWords signal concrete, information-dense content.
var specificityWords = map[string]struct{}{
	"always": {}, "never": {}, "every": {}, "exactly": {}, "specifically": {},
	"daily": {}, "weekly": {}, "monthly": {}, "yearly": {}, "annual": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {},
	"june": {}, "july": {}, "august": {}, "september": {}, "october": {},
	"november": {}, "december": {}, "monday": {}, "tuesday": {},
	"wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
}

var wordRegex = regexp.MustCompile(`[A-Za-z0-9'_\-]+`)

// Scorer computes relevance scores. Stateless; safe for concurrent use.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// Context is the routing context a candidate is scored against.
type Context struct {
	PrimaryCategory string
	Now             time.Time
}

// Score ranks fragment against query. Assistant-failure content scores a
// hard zero; other sub-scores blend into [0, 2] on top of base relevance.
func (s *Scorer) Score(f store.Fragment, query string, rctx Context) (float64, error) {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		return 0, &ScoreError{FragmentID: f.ID, Reason: "empty content"}
	}
	if f.TokenCount < 0 {
		return 0, &ScoreError{FragmentID: f.ID, Reason: "negative token count"}
	}

	ctype := ClassifyContent(content)
	if ctype == ContentAssistantFailure {
		return 0, nil
	}

	now := rctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	sum := weightContentType*contentTypeScore(ctype) +
		weightSimilarity*textSimilarity(content, query) +
		weightDensity*informationDensity(content) +
		weightRecency*recencyUsageScore(f, now)
	if f.Category == rctx.PrimaryCategory {
		sum += weightCategory
	}

	score := f.RelevanceScore + sum
	if score < 0 {
		score = 0
	}
	if score > MaxScore {
		score = MaxScore
	}
	return score, nil
}

// ClassifyContent applies the pattern rules for content suitability.
func ClassifyContent(content string) ContentType {
	lower := strings.ToLower(content)
	for _, p := range failurePatterns {
		if strings.Contains(lower, p) {
			return ContentAssistantFailure
		}
	}
	hasStatement := possessiveStatementRegex.MatchString(content)
	hasQuestion := strings.Contains(content, "?") || questionLeadRegex.MatchString(content)
	switch {
	case hasStatement && hasQuestion:
		return ContentMixed
	case hasQuestion:
		return ContentInterrogative
	default:
		return ContentInformational
	}
}

func contentTypeScore(t ContentType) float64 {
	switch t {
	case ContentInformational:
		return 1.0
	case ContentMixed:
		return 0.7
	case ContentInterrogative:
		return 0.1
	default:
		return 0
	}
}

// textSimilarity blends Jaccard overlap of meaningful words, a cosine-style
// overlap approximation and a substring containment bonus.
func textSimilarity(content, query string) float64 {
	a := meaningfulWords(content)
	b := meaningfulWords(query)
	jaccard := jaccardSimilarity(a, b)
	cosine := overlapCosine(a, b)

	sim := 0.5*jaccard + 0.3*cosine
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(strings.TrimSpace(query))
	if lowerQuery != "" && (strings.Contains(lowerContent, lowerQuery) || strings.Contains(lowerQuery, lowerContent)) {
		sim += 0.2
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}

func meaningfulWords(text string) map[string]int {
	out := map[string]int{}
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w]++
	}
	return out
}

func jaccardSimilarity(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// overlapCosine approximates cosine similarity over word-count vectors.
func overlapCosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dot := 0
	for w, ca := range a {
		if cb, ok := b[w]; ok {
			dot += ca * cb
		}
	}
	if dot == 0 {
		return 0
	}
	return float64(dot) / (vectorLen(a) * vectorLen(b))
}

func vectorLen(m map[string]int) float64 {
	sum := 0
	for _, c := range m {
		sum += c * c
	}
	return math.Sqrt(float64(sum))
}

// informationDensity is the share of proper-noun-like, numeric and
// specificity-bearing words in the content.
func informationDensity(content string) float64 {
	words := wordRegex.FindAllString(content, -1)
	if len(words) == 0 {
		return 0
	}
	dense := 0
	for i, w := range words {
		switch {
		case strings.IndexFunc(w, unicode.IsDigit) >= 0:
			dense++
		case i > 0 && len(w) > 1 && unicode.IsUpper(rune(w[0])):
			// Mid-sentence capitalization approximates proper nouns.
			dense++
		default:
			if _, ok := specificityWords[strings.ToLower(w)]; ok {
				dense++
			}
		}
	}
	d := float64(dense) / float64(len(words))
	if d > 1 {
		d = 1
	}
	return d
}

// recencyUsageScore applies staircase boosts by age since creation and last
// access, plus a capped usage-frequency boost.
func recencyUsageScore(f store.Fragment, now time.Time) float64 {
	score := ageStaircase(now.Sub(f.CreatedAt)) * 0.5
	score += ageStaircase(now.Sub(f.LastAccessedAt)) * 0.2

	usage := float64(f.UsageFrequency) * 0.05
	if usage > 0.3 {
		usage = 0.3
	}
	score += usage
	if score > 1 {
		score = 1
	}
	return score
}

func ageStaircase(age time.Duration) float64 {
	switch {
	case age < 0:
		return 1.0
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	case age < 90*24*time.Hour:
		return 0.3
	default:
		return 0.1
	}
}
