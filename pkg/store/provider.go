package store

import "fmt"

// Provider is one storage strategy in the ordered fallback chain. The chain
// replaces nested recovery logic with data: each provider either yields a
// working Store or a typed failure, and selection walks the list in order.
type Provider struct {
	Name string
	Open func() (Store, error)
}

// Selection records which provider won and what failed before it.
type Selection struct {
	Store    Store
	Provider string
	Skipped  []SkippedProvider
}

// SkippedProvider is a provider that failed to open, with its error.
type SkippedProvider struct {
	Provider string
	Err      error
}

// OpenFirst tries providers in order and returns the first that opens.
func OpenFirst(providers []Provider) (Selection, error) {
	sel := Selection{}
	for _, p := range providers {
		st, err := p.Open()
		if err != nil {
			sel.Skipped = append(sel.Skipped, SkippedProvider{Provider: p.Name, Err: err})
			continue
		}
		sel.Store = st
		sel.Provider = p.Name
		return sel, nil
	}
	return sel, fmt.Errorf("no storage provider available: %w", ErrUnavailable)
}

// DefaultProviders is the standard chain: durable SQLite file first, pure
// in-memory store as the last resort.
func DefaultProviders(dbPath string, defaultMaxTokens int) []Provider {
	return []Provider{
		{
			Name: "sqlite",
			Open: func() (Store, error) { return NewSQLiteStore(dbPath, defaultMaxTokens) },
		},
		{
			Name: "memory",
			Open: func() (Store, error) { return NewMemStore(defaultMaxTokens), nil },
		},
	}
}
