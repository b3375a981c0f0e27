package router

import (
	"strings"

	"github.com/sethgregory/memgate/pkg/category"
)

// Override rules run after base scoring and may force the routed category
// and confidence. Rules are checked in order; the first hit wins except the
// low-confidence fallback, which runs last over whatever survived.

type overrideRule struct {
	name  string
	apply func(lower string, sig signals, res Result) (Result, bool)
}

var overrideRules = []overrideRule{
	{name: "health_emergency", apply: healthEmergencyOverride},
	{name: "crisis", apply: crisisOverride},
	{name: "financial_crisis", apply: financialCrisisOverride},
	{name: "ambiguous_entity", apply: ambiguousEntityOverride},
}

var emergencyHealthTerms = []string{
	"chest pain", "heart attack", "stroke", "can't breathe", "cant breathe",
	"bleeding", "hospital", "emergency room", "ambulance", "overdose",
	"severe pain", "911", "passed out", "unconscious",
}

var urgencyMarkers = []string{
	"right now", "immediately", "urgent", "emergency", "should i", "help",
	"getting worse", "severe", "now", "asap",
}

func healthEmergencyOverride(lower string, _ signals, res Result) (Result, bool) {
	if !containsAny(lower, emergencyHealthTerms) || !containsAny(lower, urgencyMarkers) {
		return res, false
	}
	res.PrimaryCategory = category.HealthWellness
	res.Subcategory = "conditions"
	if res.Confidence < 0.9 {
		res.Confidence = 0.9
	}
	res.Reasoning = "health emergency override: urgency marker with emergency term"
	return res, true
}

var crisisTerms = []string{
	"want to die", "kill myself", "suicidal", "suicide", "self harm",
	"self-harm", "hurt myself", "end it all", "can't go on", "cant go on",
	"no reason to live", "panic attack",
}

// crisisOverride fires on the term alone. Flat phrasing, quoted or
// hypothetical mentions still escalate; false positives are acceptable here.
func crisisOverride(lower string, _ signals, res Result) (Result, bool) {
	if !containsAny(lower, crisisTerms) {
		return res, false
	}
	res.PrimaryCategory = category.MentalEmotional
	res.Subcategory = "support"
	if res.Confidence < 0.95 {
		res.Confidence = 0.95
	}
	res.Reasoning = "crisis override: crisis term"
	return res, true
}

var financialCrisisTerms = []string{
	"bankruptcy", "bankrupt", "debt collector", "collections agency",
	"can't pay", "cant pay", "missed payment", "missed a payment",
	"foreclosure", "repossess", "repossessed", "eviction", "evicted",
	"overdrawn", "maxed out", "wage garnish",
}

func financialCrisisOverride(lower string, _ signals, res Result) (Result, bool) {
	if !containsAny(lower, financialCrisisTerms) {
		return res, false
	}
	res.PrimaryCategory = category.FinanceLegal
	res.Subcategory = "debts"
	if res.Confidence < 0.85 {
		res.Confidence = 0.85
	}
	res.Reasoning = "financial crisis override: payment-failure term"
	return res, true
}

// ambiguousBrandTerms name both an animal (personal) and a company/vehicle
// brand. Possessives plus context cues disambiguate; ambiguity defaults to
// the personal reading.
var ambiguousBrandTerms = []string{"jaguar", "puma", "greyhound", "mustang", "ram", "beetle"}

var businessContextCues = []string{"company", "stock", "stocks", "brand", "dealership", "sales", "shares", "ceo", "sponsor"}
var vehicleContextCues = []string{"drive", "drove", "driving", "garage", "engine", "mileage", "parked", "wash"}
var animalContextCues = []string{"vet", "feed", "fed", "walk", "walked", "fur", "adopted", "rescue", "barks", "purrs"}

func ambiguousEntityOverride(lower string, _ signals, res Result) (Result, bool) {
	term := ""
	for _, t := range ambiguousBrandTerms {
		if containsWord(lower, t) {
			term = t
			break
		}
	}
	if term == "" {
		return res, false
	}
	possessed := strings.Contains(lower, "my "+term) || strings.Contains(lower, "our "+term)

	switch {
	case containsAny(lower, businessContextCues):
		res.PrimaryCategory = category.WorkCareer
		res.Subcategory = "business"
		res.Reasoning = "ambiguous term " + term + " read as brand/business"
	case possessed && containsAny(lower, vehicleContextCues):
		res.PrimaryCategory = category.VehiclesTransport
		res.Subcategory = "vehicles"
		res.Reasoning = "ambiguous term " + term + " read as owned vehicle"
	case possessed || containsAny(lower, animalContextCues):
		res.PrimaryCategory = category.RelationshipsFamily
		res.Subcategory = "pets"
		res.Reasoning = "ambiguous term " + term + " read as personal/pet"
	default:
		// No cues either way: personal reading wins.
		res.PrimaryCategory = category.RelationshipsFamily
		res.Subcategory = "pets"
		res.Reasoning = "ambiguous term " + term + " defaulted to personal"
	}
	if res.Confidence < 0.6 {
		res.Confidence = 0.6
	}
	return res, true
}

// lowConfidenceFallback reroutes below-threshold results to the pinned
// fallback category instead of surfacing a weak primary.
func lowConfidenceFallback(lower string, sig signals, res Result, threshold float64, tbl *category.Table) Result {
	if res.Confidence >= threshold {
		return res
	}
	fb, _ := tbl.Get(category.Fallback)
	res.AlternativeCategory = res.PrimaryCategory
	res.PrimaryCategory = fb.Name
	res.Subcategory = fb.FirstSubcategory()
	if hasPersonalContext(lower, sig) {
		res.Reasoning = "low confidence with personal context; routed to fallback"
	} else {
		res.Reasoning = "low confidence; routed to fallback"
	}
	return res
}

// containsAny matches multi-word terms by substring and single words on
// word boundaries ("now" must not match inside "know").
func containsAny(haystack string, terms []string) bool {
	for _, t := range terms {
		if strings.ContainsRune(t, ' ') {
			if strings.Contains(haystack, t) {
				return true
			}
		} else if containsWord(haystack, t) {
			return true
		}
	}
	return false
}
