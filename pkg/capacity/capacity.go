// Package capacity enforces per-(user, category) token quotas. Before every
// write the manager checks the category's accounting row and, on overflow,
// selects an eviction set by ascending keep value (relevance, usage
// frequency, age) until the incoming fragment plus a safety buffer fits.
// It also owns the dynamic category slot pool.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethgregory/memgate/pkg/category"
	"github.com/sethgregory/memgate/pkg/store"
)

// DefaultHeadroom is the extra token allowance targeted beyond the incoming
// fragment, so back-to-back writes don't each trigger an eviction pass.
const DefaultHeadroom = 1000

// Manager enforces the quota policy against a Store.
type Manager struct {
	store    store.Store
	table    *category.Table
	headroom int
}

// NewManager builds a Manager with the default headroom.
func NewManager(st store.Store, table *category.Table) *Manager {
	return &Manager{store: st, table: table, headroom: DefaultHeadroom}
}

// Plan selects the eviction set needed to fit incomingTokens into the
// category, without mutating anything. A nil id list means the write fits
// as-is. ErrCapacityExceeded means no amount of eviction can make room.
func (m *Manager) Plan(ctx context.Context, userID, cat string, incomingTokens int) ([]string, int, error) {
	usage, err := m.store.GetCategoryUsage(ctx, userID, cat)
	if err != nil {
		return nil, 0, fmt.Errorf("category usage: %w", err)
	}
	// The store row carries the configured quota; the table only backs it
	// up for stores that report no limit.
	maxTokens := usage.MaxTokens
	if maxTokens <= 0 {
		if def, ok := m.table.Get(cat); ok {
			maxTokens = def.MaxTokens
		}
	}
	if incomingTokens > maxTokens {
		return nil, 0, fmt.Errorf("fragment of %d tokens exceeds %s quota of %d: %w",
			incomingTokens, cat, maxTokens, store.ErrCapacityExceeded)
	}
	if usage.CurrentTokens+incomingTokens <= maxTokens {
		return nil, 0, nil
	}

	// need is the hard requirement; target adds headroom so the next few
	// writes don't immediately overflow again.
	need := usage.CurrentTokens + incomingTokens - maxTokens
	target := need + m.headroom

	candidates, err := m.store.ListEvictionCandidates(ctx, userID, cat, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("eviction candidates: %w", err)
	}

	ids := []string{}
	planned := 0
	for _, f := range candidates {
		if planned >= target {
			break
		}
		ids = append(ids, f.ID)
		planned += f.TokenCount
	}
	if planned < need {
		return nil, 0, fmt.Errorf("evicting all %d candidates frees only %d of %d needed tokens in %s: %w",
			len(candidates), planned, need, cat, store.ErrCapacityExceeded)
	}
	return ids, planned, nil
}

// EnsureSpace evicts as planned and returns the tokens actually freed. The
// store applies eviction and accounting in one transaction, so the
// currentTokens <= maxTokens invariant holds when this returns.
func (m *Manager) EnsureSpace(ctx context.Context, userID, cat string, incomingTokens int) (int, error) {
	ids, _, err := m.Plan(ctx, userID, cat, incomingTokens)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	freed, err := m.store.EvictCandidates(ctx, userID, cat, ids)
	if err != nil {
		return 0, fmt.Errorf("evict: %w", err)
	}
	_ = m.store.AddMetric(ctx, "capacity.evicted_tokens", float64(freed), map[string]string{
		"user_id":  userID,
		"category": cat,
	})
	return freed, nil
}

// CreateOrReuseDynamicSlot returns the dynamic category name for focus,
// allocating a free slot or, when all slots are active, archiving the
// least-recently-accessed dynamic category and reassigning its name.
func (m *Manager) CreateOrReuseDynamicSlot(ctx context.Context, userID, focus string) (string, error) {
	states, err := m.store.ListCategoryStates(ctx, userID, true)
	if err != nil {
		return "", fmt.Errorf("list dynamic categories: %w", err)
	}

	now := time.Now()
	active := []store.CategoryState{}
	taken := map[string]bool{}
	for _, cs := range states {
		if cs.Active {
			active = append(active, cs)
			taken[cs.Name] = true
			if cs.Focus == focus {
				_ = m.store.TouchCategory(ctx, userID, cs.Name, now)
				return cs.Name, nil
			}
		}
	}

	name := ""
	if len(active) < category.DynamicSlotLimit {
		for _, slot := range category.DynamicSlotNames() {
			if !taken[slot] {
				name = slot
				break
			}
		}
	}
	if name == "" {
		// Pool exhausted: archive the least-recently-used active slot and
		// reassign its name. Archived fragments stay stored but drop out
		// of fetch and accounting, so the reused slot starts empty.
		oldest := active[0]
		for _, cs := range active[1:] {
			if cs.LastAccessedAt.Before(oldest.LastAccessedAt) {
				oldest = cs
			}
		}
		if err := m.store.ArchiveCategory(ctx, userID, oldest.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("archive dynamic category %s: %w", oldest.Name, err)
		}
		_ = m.store.AddMetric(ctx, "capacity.dynamic_archived", 1, map[string]string{
			"user_id":  userID,
			"category": oldest.Name,
		})
		name = oldest.Name
	}

	// MaxTokens left at zero so the store applies its configured quota.
	if err := m.store.UpsertCategoryState(ctx, store.CategoryState{
		UserID:         userID,
		Name:           name,
		Focus:          focus,
		IsDynamic:      true,
		Active:         true,
		CreatedAt:      now,
		LastAccessedAt: now,
	}); err != nil {
		return "", fmt.Errorf("allocate dynamic category %s: %w", name, err)
	}
	return name, nil
}
