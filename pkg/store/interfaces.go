// Package store persists memory fragments and per-category accounting. The
// retrieval core consumes the Store interface only; the SQLite
// implementation is the canonical backend, with an in-memory fallback used
// by tests and the last link of the provider chain.
package store

import (
	"context"
	"time"
)

// Store is the fragment persistence contract consumed by the capacity
// manager and the assembly engine. Every method is individually atomic;
// EvictAndWrite wraps cross-fragment eviction plus accounting in a single
// transaction.
type Store interface {
	Close() error

	// FetchCandidates returns non-archived fragments for (userID,
	// category[, subcategory]), newest first, bounded by limit.
	FetchCandidates(ctx context.Context, userID, category, subcategory string, limit int) ([]Fragment, error)

	// WriteFragment stores a new fragment and updates category accounting.
	// The caller is responsible for having made room first.
	WriteFragment(ctx context.Context, f Fragment) (string, error)

	// UpdateUsage increments the usage counter and refreshes the
	// last-accessed timestamp. Content and category are never touched.
	UpdateUsage(ctx context.Context, fragmentID string) error

	// ListEvictionCandidates returns a category's fragments ordered
	// ascending by (relevanceScore, usageFrequency, createdAt).
	ListEvictionCandidates(ctx context.Context, userID, category string, limit int) ([]Fragment, error)

	// EvictCandidates removes the given fragments and returns the tokens
	// reclaimed, updating accounting in the same transaction.
	EvictCandidates(ctx context.Context, userID, category string, ids []string) (freedTokens int, err error)

	// EvictAndWrite evicts ids and writes f as one transaction, so the
	// currentTokens invariant is restored before control returns.
	EvictAndWrite(ctx context.Context, ids []string, f Fragment) (id string, freedTokens int, err error)

	// GetCategoryUsage reports current and max tokens for a category.
	GetCategoryUsage(ctx context.Context, userID, category string) (Usage, error)

	// Dynamic category lifecycle.
	ListCategoryStates(ctx context.Context, userID string, dynamicOnly bool) ([]CategoryState, error)
	UpsertCategoryState(ctx context.Context, cs CategoryState) error
	ArchiveCategory(ctx context.Context, userID, name string) error
	TouchCategory(ctx context.Context, userID, name string, at time.Time) error

	// ReconcileCategoryTokens recomputes currentTokens from the fragment
	// rows, returning how many rows drifted. Run by the maintenance sweep.
	ReconcileCategoryTokens(ctx context.Context, userID string) (corrected int, err error)

	// AddMetric records an operational counter/gauge sample.
	AddMetric(ctx context.Context, metric string, value float64, labels map[string]string) error
}
