package store

import "time"

// Fragment is a single stored unit of remembered conversational content.
type Fragment struct {
	ID             string
	UserID         string
	Category       string
	Subcategory    string
	Content        string
	TokenCount     int
	RelevanceScore float64 // persisted in [0,1]
	UsageFrequency int
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Metadata       map[string]string
	Archived       bool
}

// CategoryState is the per-(user, category) accounting row. Static
// categories get a row lazily on first write; dynamic categories carry a
// focus label and can be archived (inactive) without losing fragments.
type CategoryState struct {
	UserID         string
	Name           string
	Focus          string
	IsDynamic      bool
	Active         bool
	MaxTokens      int
	CurrentTokens  int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Usage reports current/max tokens for one category.
type Usage struct {
	CurrentTokens int
	MaxTokens     int
}
