// Package service wires the retrieval core together: storage provider
// chain, router, scorer, capacity manager and assembly engine, plus the
// cron-scheduled maintenance sweep.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sethgregory/memgate/pkg/assembly"
	"github.com/sethgregory/memgate/pkg/capacity"
	"github.com/sethgregory/memgate/pkg/category"
	"github.com/sethgregory/memgate/pkg/config"
	"github.com/sethgregory/memgate/pkg/router"
	"github.com/sethgregory/memgate/pkg/scoring"
	"github.com/sethgregory/memgate/pkg/store"
	"github.com/sethgregory/memgate/pkg/tokens"
)

// Service is the orchestrator for memory capture and recall.
type Service struct {
	cfg      config.Config
	store    store.Store
	provider string
	table    *category.Table
	router   *router.Router
	scorer   *scoring.Scorer
	capacity *capacity.Manager
	engine   *assembly.Engine
	est      tokens.Estimator

	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New opens storage through the provider chain and starts the sweeper.
func New(cfg config.Config) (*Service, error) {
	sel, err := store.OpenFirst(store.DefaultProviders(cfg.DBPath, cfg.CategoryQuota))
	if err != nil {
		return nil, err
	}
	return newWithStore(cfg, sel.Store, sel.Provider)
}

// NewWithStore builds a Service over an already-open store. Used by tests
// and embedders that manage storage themselves.
func NewWithStore(cfg config.Config, st store.Store) (*Service, error) {
	return newWithStore(cfg, st, "external")
}

func newWithStore(cfg config.Config, st store.Store, provider string) (*Service, error) {
	table := category.NewTable()
	rt := router.New(table, cfg.RouteCacheSize, router.WithFallbackThreshold(cfg.FallbackThreshold))
	sc := scoring.NewScorer()
	est := tokens.ForMode(tokens.Mode(cfg.TokenMode))

	s := &Service{
		cfg:      cfg,
		store:    st,
		provider: provider,
		table:    table,
		router:   rt,
		scorer:   sc,
		capacity: capacity.NewManager(st, table),
		engine:   assembly.NewEngine(st, rt, sc, table, est),
		est:      est,
		stopCh:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.runSweeper()
	return s, nil
}

// Close stops the sweeper and closes storage.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// Provider names the storage provider that won the fallback chain.
func (s *Service) Provider() string { return s.provider }

// Route classifies raw input for userID without touching storage.
func (s *Service) Route(userID string, input any) router.Result {
	return s.router.RouteFor(userID, router.CoerceQuery(input))
}

// Remember routes content to a category, makes room under the quota and
// persists the fragment. Eviction and the write are one store transaction.
func (s *Service) Remember(ctx context.Context, userID string, input any, metadata map[string]string) (store.Fragment, error) {
	content := router.CoerceQuery(input)
	if content == "" {
		return store.Fragment{}, fmt.Errorf("empty memory content")
	}
	if strings.TrimSpace(userID) == "" {
		return store.Fragment{}, fmt.Errorf("user id is required")
	}

	routed := s.router.RouteFor(userID, content)
	tokenCount := s.est(content)

	evictIDs, _, err := s.capacity.Plan(ctx, userID, routed.PrimaryCategory, tokenCount)
	if err != nil {
		return store.Fragment{}, err
	}

	f := store.Fragment{
		UserID:         userID,
		Category:       routed.PrimaryCategory,
		Subcategory:    routed.Subcategory,
		Content:        content,
		TokenCount:     tokenCount,
		RelevanceScore: routed.Confidence,
		Metadata:       metadata,
	}
	id, freed, err := s.store.EvictAndWrite(ctx, evictIDs, f)
	if err != nil {
		return store.Fragment{}, fmt.Errorf("write fragment: %w", err)
	}
	f.ID = id
	f.CreatedAt = time.Now()
	f.LastAccessedAt = f.CreatedAt

	_ = s.store.AddMetric(ctx, "service.remember", 1, map[string]string{
		"user_id":    userID,
		"category":   routed.PrimaryCategory,
		"confidence": routed.ConfidenceString(),
	})
	if freed > 0 {
		_ = s.store.AddMetric(ctx, "service.remember_evicted_tokens", float64(freed), map[string]string{
			"user_id":  userID,
			"category": routed.PrimaryCategory,
		})
	}
	return f, nil
}

// Recall assembles the token-budgeted memory context for query. budget <= 0
// uses the configured default. The configured request timeout bounds the
// pipeline; on expiry the best partial result comes back.
func (s *Service) Recall(ctx context.Context, userID, query string, budget int) assembly.Result {
	if budget <= 0 {
		budget = s.cfg.TotalBudget
	}
	if s.cfg.RequestTimeout > 0 {
		if _, has := ctx.Deadline(); !has {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}
	}
	return s.engine.Assemble(ctx, userID, query, budget)
}

// CreateDynamicCategory allocates (or reuses) a dynamic slot for focus.
func (s *Service) CreateDynamicCategory(ctx context.Context, userID, focus string) (string, error) {
	focus = strings.TrimSpace(focus)
	if focus == "" {
		return "", fmt.Errorf("dynamic category focus is required")
	}
	return s.capacity.CreateOrReuseDynamicSlot(ctx, userID, focus)
}

// CategoryStats reports per-category accounting for userID.
func (s *Service) CategoryStats(ctx context.Context, userID string) ([]store.CategoryState, error) {
	return s.store.ListCategoryStates(ctx, userID, false)
}

func (s *Service) runSweeper() {
	defer s.wg.Done()

	gate := newSweepGate()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			if gate.due(s.cfg.SweepSchedule, now) {
				s.sweep()
			}
		}
	}
}

// sweepGate wraps the cron check so a schedule fires at most once per due
// minute even though the ticker samples it twice a minute.
type sweepGate struct {
	lastRun time.Time
}

func newSweepGate() *sweepGate { return &sweepGate{} }

func (g *sweepGate) due(schedule string, now time.Time) bool {
	ok, err := gronx.New().IsDue(schedule, now)
	if err != nil || !ok {
		return false
	}
	minute := now.Truncate(time.Minute)
	if minute.Equal(g.lastRun) {
		return false
	}
	g.lastRun = minute
	return true
}

// sweep reconciles category token accounting against the fragment rows so
// drift from crashes or manual edits cannot accumulate.
func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	corrected, err := s.store.ReconcileCategoryTokens(ctx, "")
	if err != nil {
		_ = s.store.AddMetric(ctx, "sweep.failed", 1, nil)
		return
	}
	_ = s.store.AddMetric(ctx, "sweep.corrected_categories", float64(corrected), nil)
}
