package assembly

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sethgregory/memgate/pkg/category"
	"github.com/sethgregory/memgate/pkg/router"
	"github.com/sethgregory/memgate/pkg/scoring"
	"github.com/sethgregory/memgate/pkg/store"
	"github.com/sethgregory/memgate/pkg/tokens"
)

func newTestEngine(st store.Store) *Engine {
	table := category.NewTable()
	return NewEngine(st, router.New(table, 0), scoring.NewScorer(), table, tokens.Estimate)
}

func writeTestFragment(t *testing.T, st store.Store, cat, content string, tokenCount int, rel float64) string {
	t.Helper()
	id, err := st.WriteFragment(context.Background(), store.Fragment{
		UserID:         "u1",
		Category:       cat,
		Subcategory:    "general",
		Content:        content,
		TokenCount:     tokenCount,
		RelevanceScore: rel,
	})
	if err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	return id
}

func TestAssemble_EmptyStore(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	res := e.Assemble(context.Background(), "u1", "what car do I drive", 1000)
	if res.Status != StatusEmpty {
		t.Errorf("status = %s, want %s", res.Status, StatusEmpty)
	}
	if len(res.Fragments) != 0 || res.TotalTokens != 0 {
		t.Errorf("empty store produced fragments: %+v", res)
	}
	if res.Routing.PrimaryCategory == "" {
		t.Error("routing result missing even for empty store")
	}
}

func TestAssemble_ReturnsRelevantMemory(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	id := writeTestFragment(t, st, category.VehiclesTransport,
		"My car is a silver 2019 Subaru Outback", 10, 0.8)
	writeTestFragment(t, st, category.FoodDining,
		"My favorite pizza place is Lupa on 5th", 9, 0.8)

	res := e.Assemble(context.Background(), "u1", "my car needs an oil change", 1000)
	if res.Status != StatusOK {
		t.Fatalf("status = %s, want %s", res.Status, StatusOK)
	}
	if len(res.Fragments) == 0 {
		t.Fatal("no fragments assembled")
	}
	if res.Fragments[0].ID != id {
		t.Errorf("top fragment = %s, want the car memory %s", res.Fragments[0].ID, id)
	}
	if res.TotalTokens > 1000 {
		t.Errorf("total tokens %d exceed budget", res.TotalTokens)
	}
	found := false
	for _, c := range res.CategoriesUsed {
		if c == category.VehiclesTransport {
			found = true
		}
	}
	if !found {
		t.Errorf("categories used %v missing %s", res.CategoriesUsed, category.VehiclesTransport)
	}
}

func TestAssemble_TracksUsage(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	writeTestFragment(t, st, category.VehiclesTransport,
		"My car is a silver 2019 Subaru Outback", 10, 0.8)

	res := e.Assemble(context.Background(), "u1", "my car needs an oil change", 1000)
	if res.Status != StatusOK {
		t.Fatalf("status = %s", res.Status)
	}

	frags, err := st.FetchCandidates(context.Background(), "u1", category.VehiclesTransport, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if frags[0].UsageFrequency != 1 {
		t.Errorf("usage frequency = %d, want 1 after assembly", frags[0].UsageFrequency)
	}
}

func TestAssemble_SkipsAssistantFailures(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	writeTestFragment(t, st, category.VehiclesTransport,
		"I don't have any information about your car", 9, 1.0)
	id := writeTestFragment(t, st, category.VehiclesTransport,
		"My car is a silver 2019 Subaru Outback", 10, 0.4)

	res := e.Assemble(context.Background(), "u1", "my car needs an oil change", 1000)
	if res.Status != StatusOK {
		t.Fatalf("status = %s", res.Status)
	}
	for _, f := range res.Fragments {
		if f.ID != id {
			t.Errorf("assistant-failure fragment admitted: %s", f.Content)
		}
	}
}

func TestAssemble_RelatedCategoriesWhenThin(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	// Nothing in the primary category; the adjacent one holds the memory.
	writeTestFragment(t, st, category.HomeHousehold,
		"My garage door opener is a Chamberlain B970", 11, 0.8)

	res := e.Assemble(context.Background(), "u1", "my car needs an oil change", 1000)
	if res.Status != StatusOK {
		t.Fatalf("status = %s, want related-category fill to produce a result", res.Status)
	}
	found := false
	for _, c := range res.CategoriesUsed {
		if c == category.HomeHousehold {
			found = true
		}
	}
	if !found {
		t.Errorf("related category not consulted: used %v", res.CategoriesUsed)
	}
}

type failingStore struct {
	*store.MemStore
}

func (f *failingStore) FetchCandidates(context.Context, string, string, string, int) ([]store.Fragment, error) {
	return nil, errors.New("disk on fire")
}

func TestAssemble_DegradedOnStoreError(t *testing.T) {
	st := &failingStore{MemStore: store.NewMemStore(category.DefaultMaxTokens)}
	e := newTestEngine(st)

	res := e.Assemble(context.Background(), "u1", "my car needs an oil change", 1000)
	if res.Status != StatusDegraded {
		t.Errorf("status = %s, want %s", res.Status, StatusDegraded)
	}
	if len(res.Fragments) != 0 {
		t.Errorf("degraded result carried fragments: %+v", res.Fragments)
	}
}

func TestAssemble_CancelledContext(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)
	writeTestFragment(t, st, category.VehiclesTransport, "My car is a Subaru", 5, 0.8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Assemble(ctx, "u1", "my car", 1000)
	if res.Status == StatusOK {
		t.Errorf("cancelled context produced OK result: %+v", res)
	}
}

func TestPack_BudgetAndTruncation(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	long := strings.Repeat("the garage invoice lists parts and labor for the timing belt job ", 160)
	mk := func(id string, tokenCount int) store.Fragment {
		return store.Fragment{
			ID:         id,
			UserID:     "u1",
			Category:   category.VehiclesTransport,
			Content:    long,
			TokenCount: tokenCount,
			CreatedAt:  time.Now(),
		}
	}
	scored := []scoredFragment{
		{frag: mk("f-500", 500), score: 0.95},
		{frag: mk("f-800", 800), score: 0.90},
		{frag: mk("f-700", 700), score: 0.85},
		{frag: mk("f-600", 600), score: 0.80},
	}

	res := e.pack(context.Background(), "u1", scored, 2400, router.Result{PrimaryCategory: category.VehiclesTransport})
	if res.Status != StatusOK {
		t.Fatalf("status = %s", res.Status)
	}
	// Main pass admits 500+800+700=2000; 600 overflows the main budget and
	// the reserve, then comes back truncated to the remaining allowance.
	if len(res.Fragments) != 4 {
		t.Fatalf("admitted %d fragments, want 4", len(res.Fragments))
	}
	for i, want := range []string{"f-500", "f-800", "f-700", "f-600"} {
		if res.Fragments[i].ID != want {
			t.Errorf("fragment %d = %s, want %s", i, res.Fragments[i].ID, want)
		}
	}
	last := res.Fragments[3]
	if !last.Truncated {
		t.Error("overflow fragment should be truncated, not dropped")
	}
	if last.TokenCount > 400 {
		t.Errorf("truncated fragment %d tokens, want <= remaining 400", last.TokenCount)
	}
	if len(last.Content) >= len(long) {
		t.Error("truncated content not shortened")
	}
	if res.TotalTokens > 2400 {
		t.Errorf("total %d exceeds budget 2400", res.TotalTokens)
	}
	if res.TotalTokens < 2000 {
		t.Errorf("total %d below the main-pass floor", res.TotalTokens)
	}
}

func TestPack_NeverExceedsBudget(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	e := newTestEngine(st)

	for _, budget := range []int{100, 500, 1200, 8000} {
		scored := []scoredFragment{}
		for i := 0; i < 12; i++ {
			scored = append(scored, scoredFragment{
				frag: store.Fragment{
					ID:         string(rune('a' + i)),
					UserID:     "u1",
					Category:   category.WorkCareer,
					Content:    strings.Repeat("x", 300),
					TokenCount: 73 * (i + 1) % 390,
					CreatedAt:  time.Now(),
				},
				score: 1.5 - float64(i)*0.1,
			})
		}
		res := e.pack(context.Background(), "u1", scored, budget, router.Result{})
		if res.TotalTokens > budget {
			t.Errorf("budget %d exceeded: total %d", budget, res.TotalTokens)
		}
	}
}

func TestMergeCandidates_Dedupes(t *testing.T) {
	a := []store.Fragment{{ID: "1"}, {ID: "2"}}
	b := []store.Fragment{{ID: "2"}, {ID: "3"}, {ID: "4"}}
	out := mergeCandidates(a, b, 3)
	if len(out) != 3 {
		t.Fatalf("merged %d, want 3", len(out))
	}
	if out[0].ID != "1" || out[1].ID != "2" || out[2].ID != "3" {
		t.Errorf("merge order wrong: %+v", out)
	}
}

func TestTruncateFragment(t *testing.T) {
	f := store.Fragment{Content: strings.Repeat("abcd ", 100), TokenCount: 125}
	cut := truncateFragment(f, 20, tokens.Estimate)
	if len(cut.Content) > 20*truncateCharsPerTok {
		t.Errorf("content %d chars, want <= %d", len(cut.Content), 20*truncateCharsPerTok)
	}
	if cut.TokenCount > 20 {
		t.Errorf("token count %d, want <= 20", cut.TokenCount)
	}
}
