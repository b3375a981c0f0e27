// Package assembly is the extraction pipeline: route a query, fetch
// candidate fragments, score and rank them, then pack the best into a fixed
// token budget with a reserved allowance for late high-value candidates.
//
// The pipeline runs one stage at a time (ROUTING → PRIMARY_FETCH →
// RELATED_FETCH → SCORE_AND_RANK → BUDGET_PACK → DONE) and never fails
// hard: a dead store degrades to an empty result with a status flag, a
// fragment that cannot be scored is dropped, and an expired context returns
// whatever was packed so far.
package assembly

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sethgregory/memgate/pkg/category"
	"github.com/sethgregory/memgate/pkg/router"
	"github.com/sethgregory/memgate/pkg/scoring"
	"github.com/sethgregory/memgate/pkg/store"
	"github.com/sethgregory/memgate/pkg/tokens"
)

// Pipeline stage names, recorded in metrics.
const (
	stageRouting      = "routing"
	stagePrimaryFetch = "primary_fetch"
	stageRelatedFetch = "related_fetch"
	stageScoreAndRank = "score_and_rank"
	stageBudgetPack   = "budget_pack"
)

// Packing knobs.
const (
	// DefaultBudget is used when the caller passes no budget.
	DefaultBudget = 8000

	primaryFetchLimit   = 18
	relatedFetchTrigger = 10
	relatedFetchLimit   = 6
	reserveFraction     = 0.15
	highValueFraction   = 0.8
	truncateUtilization = 0.9
	truncateCharsPerTok = 4
	minTruncationTokens = 20
)

// Status distinguishes a normal empty result from a degraded one.
type Status string

const (
	StatusOK       Status = "ok"
	StatusEmpty    Status = "empty"
	StatusDegraded Status = "degraded"
)

// PackedFragment is one admitted fragment with its ranking score. Truncated
// content is cut to the remaining character budget, never dropped.
type PackedFragment struct {
	store.Fragment
	Score     float64
	Truncated bool
}

// Result is the assembled context for one query.
type Result struct {
	Fragments      []PackedFragment
	TotalTokens    int
	CategoriesUsed []string
	Routing        router.Result
	Status         Status
}

// Engine orchestrates the pipeline over its collaborators.
type Engine struct {
	store  store.Store
	router *router.Router
	scorer *scoring.Scorer
	table  *category.Table
	est    tokens.Estimator
}

// NewEngine wires the pipeline. est defaults to the simple estimator.
func NewEngine(st store.Store, rt *router.Router, sc *scoring.Scorer, table *category.Table, est tokens.Estimator) *Engine {
	if est == nil {
		est = tokens.Estimate
	}
	return &Engine{store: st, router: rt, scorer: sc, table: table, est: est}
}

type scoredFragment struct {
	frag  store.Fragment
	score float64
}

// Assemble runs the full pipeline for (userID, query) under totalBudget
// tokens. It never returns an error for classification or store failures;
// those degrade through the Status field.
func (e *Engine) Assemble(ctx context.Context, userID, query string, totalBudget int) Result {
	if totalBudget <= 0 {
		totalBudget = DefaultBudget
	}

	// ROUTING
	routed := e.router.RouteFor(userID, query)
	res := Result{Routing: routed, Status: StatusEmpty}
	if ctx.Err() != nil {
		return res
	}

	// PRIMARY_FETCH
	candidates, err := e.store.FetchCandidates(ctx, userID, routed.PrimaryCategory, routed.Subcategory, primaryFetchLimit)
	if err != nil {
		e.metric(ctx, "assembly.store_error", stagePrimaryFetch, userID)
		res.Status = StatusDegraded
		return res
	}
	if len(candidates) < primaryFetchLimit {
		// Widen to the whole category when the subcategory is thin.
		more, err := e.store.FetchCandidates(ctx, userID, routed.PrimaryCategory, "", primaryFetchLimit)
		if err == nil {
			candidates = mergeCandidates(candidates, more, primaryFetchLimit)
		}
	}

	// RELATED_FETCH, only when the primary bucket is thin.
	if len(candidates) < relatedFetchTrigger && ctx.Err() == nil {
		for _, rel := range e.table.Related(routed.PrimaryCategory) {
			extra, err := e.store.FetchCandidates(ctx, userID, rel, "", relatedFetchLimit)
			if err != nil {
				e.metric(ctx, "assembly.store_error", stageRelatedFetch, userID)
				continue
			}
			candidates = mergeCandidates(candidates, extra, len(candidates)+len(extra))
		}
	}
	if len(candidates) == 0 {
		e.metric(ctx, "assembly.empty_candidates", stagePrimaryFetch, userID)
		return res
	}

	// SCORE_AND_RANK
	rctx := scoring.Context{PrimaryCategory: routed.PrimaryCategory}
	scored := make([]scoredFragment, 0, len(candidates))
	for _, f := range candidates {
		s, err := e.scorer.Score(f, query, rctx)
		if err != nil {
			var scoreErr *scoring.ScoreError
			if errors.As(err, &scoreErr) {
				e.metric(ctx, "assembly.unscorable_fragment", stageScoreAndRank, userID)
				continue
			}
			continue
		}
		if s <= 0 {
			continue
		}
		scored = append(scored, scoredFragment{frag: f, score: s})
	}
	if len(scored) == 0 {
		return res
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.frag.UsageFrequency != b.frag.UsageFrequency {
			return a.frag.UsageFrequency > b.frag.UsageFrequency
		}
		return a.frag.CreatedAt.After(b.frag.CreatedAt)
	})

	// BUDGET_PACK
	return e.pack(ctx, userID, scored, totalBudget, routed)
}

// pack greedily fills the main budget by score order, then admits remaining
// high-value fragments into the reserve, then tries the truncation fallback.
func (e *Engine) pack(ctx context.Context, userID string, scored []scoredFragment, totalBudget int, routed router.Result) Result {
	res := Result{Routing: routed, Status: StatusEmpty}
	mainBudget := int(float64(totalBudget) * (1 - reserveFraction))

	maxScore := scored[0].score
	highValue := highValueFraction * maxScore

	running := 0
	admitted := map[int]bool{}
	for i, sf := range scored {
		if ctx.Err() != nil {
			break
		}
		if running+sf.frag.TokenCount > mainBudget {
			continue
		}
		res.Fragments = append(res.Fragments, PackedFragment{Fragment: sf.frag, Score: sf.score})
		running += sf.frag.TokenCount
		admitted[i] = true
	}

	// Reserve pass: strong leftovers may use the held-back allowance.
	for i, sf := range scored {
		if admitted[i] || sf.score < highValue || ctx.Err() != nil {
			continue
		}
		if running+sf.frag.TokenCount > totalBudget {
			continue
		}
		res.Fragments = append(res.Fragments, PackedFragment{Fragment: sf.frag, Score: sf.score})
		running += sf.frag.TokenCount
		admitted[i] = true
	}

	// Truncation fallback: one near-fit high-value fragment gets cut to
	// the remaining allowance instead of dropped.
	if ctx.Err() == nil && float64(running) < truncateUtilization*float64(totalBudget) {
		remaining := totalBudget - running
		if remaining >= minTruncationTokens {
			for i, sf := range scored {
				if admitted[i] || sf.score < highValue {
					continue
				}
				cut := truncateFragment(sf.frag, remaining, e.est)
				res.Fragments = append(res.Fragments, PackedFragment{Fragment: cut, Score: sf.score, Truncated: true})
				running += cut.TokenCount
				break
			}
		}
	}

	if len(res.Fragments) == 0 {
		return res
	}
	res.Status = StatusOK
	res.TotalTokens = running
	res.CategoriesUsed = usedCategories(res.Fragments)

	// Usage tracking side effect per admitted fragment.
	for _, pf := range res.Fragments {
		if err := e.store.UpdateUsage(ctx, pf.ID); err != nil {
			e.metric(ctx, "assembly.usage_update_failed", stageBudgetPack, userID)
		}
	}
	return res
}

func truncateFragment(f store.Fragment, remainingTokens int, est tokens.Estimator) store.Fragment {
	charBudget := remainingTokens * truncateCharsPerTok
	runes := []rune(f.Content)
	if len(runes) > charBudget {
		f.Content = strings.TrimSpace(string(runes[:charBudget]))
	}
	tc := est(f.Content)
	if tc > remainingTokens {
		tc = remainingTokens
	}
	f.TokenCount = tc
	return f
}

func mergeCandidates(base, extra []store.Fragment, limit int) []store.Fragment {
	seen := map[string]bool{}
	for _, f := range base {
		seen[f.ID] = true
	}
	for _, f := range extra {
		if len(base) >= limit && limit > 0 {
			break
		}
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		base = append(base, f)
	}
	return base
}

func usedCategories(frags []PackedFragment) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, f := range frags {
		if !seen[f.Category] {
			seen[f.Category] = true
			out = append(out, f.Category)
		}
	}
	return out
}

func (e *Engine) metric(ctx context.Context, name, stage, userID string) {
	_ = e.store.AddMetric(ctx, name, 1, map[string]string{
		"stage":   stage,
		"user_id": userID,
	})
}
