// Package router classifies free text into the fixed category scheme. The
// classifier is purely heuristic: weighted keyword and phrase tables per
// category, a light semantic pass (intent, emotional tone, entity hints) and
// a small set of hard override rules for emergencies and ambiguous terms.
//
// Route never fails. Malformed input degrades through a deterministic chain:
// pinned fallback category first, last-resort default if the scoring pass
// itself panics.
package router

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sethgregory/memgate/pkg/category"
)

const (
	// MinConfidence and MaxConfidence bound every reported confidence.
	MinConfidence = 0.2
	MaxConfidence = 1.0

	// confidenceDenominator normalizes the raw top score. Implementation-
	// defined constant; see DESIGN.md.
	confidenceDenominator = 10.0

	// DefaultFallbackThreshold is the confidence below which results are
	// rerouted to the pinned fallback category.
	DefaultFallbackThreshold = 0.4

	// DefaultCacheSize bounds the routing cache.
	DefaultCacheSize = 256
)

// Result is the outcome of routing one query. Ephemeral; consumed
// immediately by the caller.
type Result struct {
	PrimaryCategory     string
	Subcategory         string
	Confidence          float64
	AlternativeCategory string
	Reasoning           string
}

// ConfidenceString renders confidence at the 3-decimal precision used
// anywhere a result is logged or surfaced.
func (r Result) ConfidenceString() string {
	return fmt.Sprintf("%.3f", r.Confidence)
}

// Router routes queries against an immutable category table. Safe for
// concurrent use; the result cache is bounded and shared across requests.
type Router struct {
	table     *category.Table
	threshold float64

	mu    sync.Mutex
	cache *lru.Cache[string, Result]
}

// Option adjusts Router construction.
type Option func(*Router)

// WithFallbackThreshold overrides the low-confidence fallback threshold.
func WithFallbackThreshold(v float64) Option {
	return func(r *Router) {
		if v > 0 {
			r.threshold = v
		}
	}
}

// New builds a Router over table with a bounded routing cache.
func New(table *category.Table, cacheSize int, opts ...Option) *Router {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Result](cacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which is handled above.
		panic(err)
	}
	r := &Router{table: table, threshold: DefaultFallbackThreshold, cache: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CoerceQuery is the single input-normalization boundary. Callers holding
// decoded JSON or otherwise untyped payloads get one canonical string;
// nothing downstream ever sees a non-string query.
func CoerceQuery(v any) string {
	switch q := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(q)
	case []byte:
		return strings.TrimSpace(string(q))
	case fmt.Stringer:
		return strings.TrimSpace(q.String())
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", q))
	}
}

// Route classifies query without a cache owner scope.
func (r *Router) Route(query string) Result {
	return r.RouteFor("", query)
}

// RouteFor classifies query, caching the result under (ownerID, normalized
// query). Reads use Peek so cache eviction order stays insertion order.
func (r *Router) RouteFor(ownerID, query string) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = r.lastResort(fmt.Sprintf("classifier recovered: %v", rec))
		}
	}()

	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return r.emptyInputResult()
	}

	key := ownerID + "|" + normalized
	r.mu.Lock()
	cached, ok := r.cache.Peek(key)
	r.mu.Unlock()
	if ok {
		return cached
	}

	res = r.classify(normalized)

	r.mu.Lock()
	r.cache.Add(key, res)
	r.mu.Unlock()
	return res
}

func (r *Router) classify(lower string) Result {
	sig := analyze(lower)

	var (
		top, second     float64
		topCat          string
		secondCat       string
		topKeywordCount int
	)
	for _, name := range r.table.Names() {
		score, hits := r.scoreCategory(lower, name, sig)
		if score > top {
			second, secondCat = top, topCat
			top, topCat = score, name
			topKeywordCount = hits
		} else if score > second {
			second, secondCat = score, name
		}
	}

	res := Result{
		PrimaryCategory:     topCat,
		AlternativeCategory: secondCat,
	}
	if topCat == "" {
		def, _ := r.table.Get(category.Default)
		res.PrimaryCategory = def.Name
		res.Subcategory = def.FirstSubcategory()
		res.Confidence = MinConfidence
		res.Reasoning = "no category signal"
		return r.applyOverrides(lower, sig, res)
	}

	res.Subcategory = r.selectSubcategory(lower, topCat)
	res.Confidence = combineConfidence(top, second, sig.Confidence)
	res.Reasoning = fmt.Sprintf("top=%s score=%.2f hits=%d intent=%s entities=%s",
		topCat, top, topKeywordCount, sig.Intent, strings.Join(sig.Entities, ","))

	return r.applyOverrides(lower, sig, res)
}

func (r *Router) applyOverrides(lower string, sig signals, res Result) Result {
	for _, rule := range overrideRules {
		if forced, ok := rule.apply(lower, sig, res); ok {
			return clampResult(forced)
		}
	}
	res = lowConfidenceFallback(lower, sig, res, r.threshold, r.table)
	return clampResult(res)
}

// scoreCategory computes one category's base score: keyword hits, phrase
// hits, cluster co-occurrence, entity alignment and intent alignment.
func (r *Router) scoreCategory(lower, name string, sig signals) (float64, int) {
	prof, ok := profiles[name]
	if !ok {
		return 0, 0
	}
	score := 0.0
	hits := 0
	for kw, w := range prof.keywords {
		if containsWord(lower, kw) {
			score += w
			hits++
		}
	}
	for phrase, w := range prof.phrases {
		if strings.Contains(lower, phrase) {
			score += w
			hits++
		}
	}
	for _, cluster := range prof.clusters {
		present := 0
		for _, kw := range cluster {
			if containsWord(lower, kw) {
				present++
			}
		}
		if present >= 2 {
			score += clusterBonus
		}
	}
	for _, entity := range sig.Entities {
		if entityAlignment[entity] == name {
			score += entityBonus
		}
	}
	if weights, ok := intentAlignment[sig.Intent]; ok {
		score += weights[name]
	}
	return score, hits
}

// selectSubcategory re-scores only within the winning category's
// subcategory keyword sets, defaulting to the first subcategory.
func (r *Router) selectSubcategory(lower, cat string) string {
	def, ok := r.table.Get(cat)
	if !ok {
		return "general"
	}
	prof, ok := profiles[cat]
	if !ok {
		return def.FirstSubcategory()
	}
	best := def.FirstSubcategory()
	bestHits := 0
	for _, sub := range def.Subcategories {
		hitCount := 0
		for _, kw := range prof.subcategories[sub] {
			if containsWord(lower, kw) {
				hitCount++
			}
		}
		if hitCount > bestHits {
			bestHits = hitCount
			best = sub
		}
	}
	return best
}

// combineConfidence blends the normalized top score, the separation between
// the top two scores, and the semantic-analysis confidence.
func combineConfidence(top, second, semantic float64) float64 {
	normalized := top / confidenceDenominator
	if normalized > 1.0 {
		normalized = 1.0
	}
	separation := 0.0
	if top > 0 {
		separation = (top - second) / top
	}
	conf := 0.5*normalized + 0.25*separation + 0.25*semantic
	return clampConfidence(conf)
}

func clampConfidence(v float64) float64 {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

func clampResult(res Result) Result {
	res.Confidence = clampConfidence(res.Confidence)
	return res
}

func (r *Router) emptyInputResult() Result {
	def, _ := r.table.Get(category.Default)
	return Result{
		PrimaryCategory: def.Name,
		Subcategory:     def.FirstSubcategory(),
		Confidence:      MinConfidence,
		Reasoning:       "empty input",
	}
}

func (r *Router) lastResort(reason string) Result {
	return Result{
		PrimaryCategory: category.Default,
		Subcategory:     "profile",
		Confidence:      MinConfidence,
		Reasoning:       reason,
	}
}
