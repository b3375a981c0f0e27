package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is a map-backed Store used by tests and as the last link of the
// provider chain. Mutations hold one mutex, so the evict+write pair is
// atomic the same way the SQLite transaction is.
type MemStore struct {
	mu               sync.Mutex
	fragments        map[string]*Fragment
	categories       map[string]*CategoryState // keyed userID|name
	defaultMaxTokens int
	metrics          []metricSample
}

type metricSample struct {
	Metric string
	Value  float64
	Labels map[string]string
	At     time.Time
}

// NewMemStore builds an empty in-memory store.
func NewMemStore(defaultMaxTokens int) *MemStore {
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 50000
	}
	return &MemStore{
		fragments:        map[string]*Fragment{},
		categories:       map[string]*CategoryState{},
		defaultMaxTokens: defaultMaxTokens,
	}
}

func (m *MemStore) Close() error { return nil }

func catKey(userID, name string) string { return userID + "|" + name }

func (m *MemStore) FetchCandidates(_ context.Context, userID, cat, sub string, limit int) ([]Fragment, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Fragment{}
	for _, f := range m.fragments {
		if f.UserID != userID || f.Category != cat || f.Archived {
			continue
		}
		if sub != "" && f.Subcategory != sub {
			continue
		}
		out = append(out, *f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore == out[j].RelevanceScore {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) WriteFragment(_ context.Context, f Fragment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(f)
}

func (m *MemStore) writeLocked(f Fragment) (string, error) {
	if f.ID == "" {
		f.ID = "frag-" + uuid.NewString()
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = f.CreatedAt
	}
	f.RelevanceScore = clampUnit(f.RelevanceScore)
	if f.Metadata == nil {
		f.Metadata = map[string]string{}
	}

	cs := m.ensureCategoryLocked(f.UserID, f.Category)
	cs.CurrentTokens += f.TokenCount
	cs.LastAccessedAt = now

	stored := f
	m.fragments[f.ID] = &stored
	return f.ID, nil
}

func (m *MemStore) ensureCategoryLocked(userID, name string) *CategoryState {
	key := catKey(userID, name)
	if cs, ok := m.categories[key]; ok {
		return cs
	}
	now := time.Now()
	cs := &CategoryState{
		UserID:         userID,
		Name:           name,
		Active:         true,
		MaxTokens:      m.defaultMaxTokens,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.categories[key] = cs
	return cs
}

func (m *MemStore) UpdateUsage(_ context.Context, fragmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fragments[fragmentID]
	if !ok {
		return ErrNotFound
	}
	f.UsageFrequency++
	f.LastAccessedAt = time.Now()
	return nil
}

func (m *MemStore) ListEvictionCandidates(_ context.Context, userID, cat string, limit int) ([]Fragment, error) {
	if limit <= 0 {
		limit = 200
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Fragment{}
	for _, f := range m.fragments {
		if f.UserID == userID && f.Category == cat && !f.Archived {
			out = append(out, *f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore < b.RelevanceScore
		}
		if a.UsageFrequency != b.UsageFrequency {
			return a.UsageFrequency < b.UsageFrequency
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) EvictCandidates(_ context.Context, userID, cat string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(userID, cat, ids), nil
}

func (m *MemStore) evictLocked(userID, cat string, ids []string) int {
	freed := 0
	for _, id := range ids {
		f, ok := m.fragments[id]
		if !ok || f.UserID != userID || f.Category != cat {
			continue
		}
		freed += f.TokenCount
		delete(m.fragments, id)
	}
	if cs, ok := m.categories[catKey(userID, cat)]; ok {
		cs.CurrentTokens -= freed
		if cs.CurrentTokens < 0 {
			cs.CurrentTokens = 0
		}
	}
	return freed
}

func (m *MemStore) EvictAndWrite(_ context.Context, ids []string, f Fragment) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	freed := m.evictLocked(f.UserID, f.Category, ids)
	id, err := m.writeLocked(f)
	return id, freed, err
}

func (m *MemStore) GetCategoryUsage(_ context.Context, userID, cat string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.categories[catKey(userID, cat)]
	if !ok {
		return Usage{CurrentTokens: 0, MaxTokens: m.defaultMaxTokens}, nil
	}
	return Usage{CurrentTokens: cs.CurrentTokens, MaxTokens: cs.MaxTokens}, nil
}

func (m *MemStore) ListCategoryStates(_ context.Context, userID string, dynamicOnly bool) ([]CategoryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []CategoryState{}
	for _, cs := range m.categories {
		if cs.UserID != userID {
			continue
		}
		if dynamicOnly && !cs.IsDynamic {
			continue
		}
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) UpsertCategoryState(_ context.Context, cs CategoryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.MaxTokens <= 0 {
		cs.MaxTokens = m.defaultMaxTokens
	}
	now := time.Now()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	if cs.LastAccessedAt.IsZero() {
		cs.LastAccessedAt = now
	}
	if existing, ok := m.categories[catKey(cs.UserID, cs.Name)]; ok {
		cs.CurrentTokens = existing.CurrentTokens
		cs.CreatedAt = existing.CreatedAt
	}
	stored := cs
	m.categories[catKey(cs.UserID, cs.Name)] = &stored
	return nil
}

// ArchiveCategory deactivates the category row, marks its fragments
// archived and zeroes its token accounting, matching the SQLite store.
func (m *MemStore) ArchiveCategory(_ context.Context, userID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.categories[catKey(userID, name)]
	if !ok {
		return ErrNotFound
	}
	cs.Active = false
	cs.CurrentTokens = 0
	for _, f := range m.fragments {
		if f.UserID == userID && f.Category == name {
			f.Archived = true
		}
	}
	return nil
}

func (m *MemStore) TouchCategory(_ context.Context, userID, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.categories[catKey(userID, name)]; ok {
		cs.LastAccessedAt = at
	}
	return nil
}

func (m *MemStore) ReconcileCategoryTokens(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Empty userID reconciles every user (maintenance sweep).
	sums := map[string]int{}
	for _, f := range m.fragments {
		if f.Archived {
			continue
		}
		if userID == "" || f.UserID == userID {
			sums[catKey(f.UserID, f.Category)] += f.TokenCount
		}
	}
	corrected := 0
	for key, cs := range m.categories {
		if userID != "" && cs.UserID != userID {
			continue
		}
		if want := sums[key]; cs.CurrentTokens != want {
			cs.CurrentTokens = want
			corrected++
		}
	}
	return corrected, nil
}

func (m *MemStore) AddMetric(_ context.Context, metric string, value float64, labels map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metricSample{Metric: metric, Value: value, Labels: labels, At: time.Now()})
	return nil
}

// MetricCount reports how many samples of metric were recorded. Test helper.
func (m *MemStore) MetricCount(metric string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.metrics {
		if s.Metric == metric {
			n++
		}
	}
	return n
}
