package router

import (
	"regexp"
	"strings"

	"github.com/sethgregory/memgate/pkg/category"
)

// Query intents recognized by the light semantic pass.
const (
	IntentMemoryRecall    = "memory_recall"
	IntentPersonalSharing = "personal_sharing"
	IntentProblemSeeking  = "problem_seeking"
	IntentQuestion        = "question"
	IntentStatement       = "statement"
)

var (
	recallLeadRegex   = regexp.MustCompile(`(?i)\b(?:do you remember|what did i|did i tell you|remind me what|what do you know about my|last time)\b`)
	sharingLeadRegex  = regexp.MustCompile(`(?i)^\s*(?:i|i'm|i am|my|we|our)\b`)
	problemLeadRegex  = regexp.MustCompile(`(?i)\b(?:help|how do i|how can i|what should i|should i|struggling|trouble|can't figure|advice)\b`)
	questionLeadRegex = regexp.MustCompile(`(?i)^\s*(?:what|why|how|when|where|who|can|could|would|do|does|did|is|are|am)\b`)
	possessiveRegex   = regexp.MustCompile(`(?i)\b(?:my|our)\s+(\w+)`)
)

// signals is the output of the semantic pass over a query: intent, emotional
// intensity, detected entity classes, and a heuristic confidence in the
// analysis itself.
type signals struct {
	Intent     string
	Emotional  float64
	Entities   []string
	Confidence float64
}

var intensityMarkers = []string{
	"desperate", "terrified", "devastated", "furious", "sobbing",
	"overwhelmed", "hopeless", "exhausted", "panicking", "breaking down",
	"can't take", "so scared", "really worried", "extremely",
}

var mildMarkers = []string{
	"worried", "upset", "sad", "frustrated", "nervous", "anxious",
	"stressed", "annoyed", "scared",
}

// entityTerms maps detectable entity classes to surface cues. Entity classes
// line up with categories via entityAlignment.
var entityTerms = map[string][]string{
	"family":   {"wife", "husband", "partner", "mom", "dad", "mother", "father", "sister", "brother", "daughter", "son", "kids", "family"},
	"pet":      {"dog", "cat", "puppy", "kitten", "pet", "vet"},
	"vehicle":  {"car", "truck", "motorcycle", "engine", "tires", "mechanic"},
	"business": {"business", "company", "startup", "client", "revenue", "brand"},
	"health":   {"doctor", "hospital", "medication", "symptom", "diagnosis"},
	"finance":  {"loan", "debt", "mortgage", "savings", "invoice", "taxes"},
	"home":     {"house", "apartment", "landlord", "kitchen", "garage"},
	"food":     {"recipe", "restaurant", "dinner", "cooking"},
	"travel":   {"flight", "hotel", "vacation", "passport", "airport"},
}

var entityAlignment = map[string]string{
	"family":   category.RelationshipsFamily,
	"pet":      category.RelationshipsFamily,
	"vehicle":  category.VehiclesTransport,
	"business": category.WorkCareer,
	"health":   category.HealthWellness,
	"finance":  category.FinanceLegal,
	"home":     category.HomeHousehold,
	"food":     category.FoodDining,
	"travel":   category.TravelPlaces,
}

// intentAlignment weights each intent per category. Personal sharing favors
// identity/relationship buckets; problem seeking favors the buckets people
// bring problems to.
var intentAlignment = map[string]map[string]float64{
	IntentPersonalSharing: {
		category.PersonalIdentity:    1.5,
		category.RelationshipsFamily: 1.2,
		category.MentalEmotional:     1.0,
		category.HobbiesLeisure:      0.8,
	},
	IntentProblemSeeking: {
		category.HealthWellness:  1.2,
		category.MentalEmotional: 1.2,
		category.FinanceLegal:    1.0,
		category.HomeHousehold:   0.8,
		category.WorkCareer:      0.8,
	},
	IntentMemoryRecall: {
		category.PersonalIdentity:    0.8,
		category.RelationshipsFamily: 0.6,
	},
	IntentQuestion: {},
}

func analyze(query string) signals {
	lower := strings.ToLower(query)
	sig := signals{Intent: detectIntent(lower)}

	for _, marker := range intensityMarkers {
		if strings.Contains(lower, marker) {
			sig.Emotional += 0.35
		}
	}
	for _, marker := range mildMarkers {
		if containsWord(lower, marker) {
			sig.Emotional += 0.15
		}
	}
	if sig.Emotional > 1.0 {
		sig.Emotional = 1.0
	}

	for class, terms := range entityTerms {
		for _, term := range terms {
			if containsWord(lower, term) {
				sig.Entities = append(sig.Entities, class)
				break
			}
		}
	}

	// Analysis confidence grows with the number of independent signals.
	sig.Confidence = 0.3
	if sig.Intent != IntentStatement {
		sig.Confidence += 0.2
	}
	if len(sig.Entities) > 0 {
		sig.Confidence += 0.3
	}
	if sig.Emotional > 0 {
		sig.Confidence += 0.1
	}
	if sig.Confidence > 1.0 {
		sig.Confidence = 1.0
	}
	return sig
}

func detectIntent(lower string) string {
	switch {
	case recallLeadRegex.MatchString(lower):
		return IntentMemoryRecall
	case problemLeadRegex.MatchString(lower):
		return IntentProblemSeeking
	case questionLeadRegex.MatchString(lower) || strings.Contains(lower, "?"):
		return IntentQuestion
	case sharingLeadRegex.MatchString(lower):
		return IntentPersonalSharing
	default:
		return IntentStatement
	}
}

// hasPersonalContext reports whether the query reads as personal or
// emotional, used by the low-confidence fallback rule.
func hasPersonalContext(lower string, sig signals) bool {
	if sig.Intent == IntentPersonalSharing || sig.Emotional > 0.25 {
		return true
	}
	for _, e := range sig.Entities {
		if e == "family" || e == "pet" {
			return true
		}
	}
	return possessiveRegex.MatchString(lower)
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		leftOK := start == 0 || !isWordRune(haystack[start-1])
		rightOK := end == len(haystack) || !isWordRune(haystack[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
		if idx >= len(haystack) {
			return false
		}
	}
}

func isWordRune(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '\''
}
