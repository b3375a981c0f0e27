package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethgregory/memgate/pkg/assembly"
	"github.com/sethgregory/memgate/pkg/category"
	"github.com/sethgregory/memgate/pkg/config"
	"github.com/sethgregory/memgate/pkg/store"
)

func testConfig() config.Config {
	return config.Config{
		TotalBudget:       8000,
		CategoryQuota:     category.DefaultMaxTokens,
		TokenMode:         "simple",
		RouteCacheSize:    64,
		FallbackThreshold: 0.4,
		RequestTimeout:    5 * time.Second,
		SweepSchedule:     "0 * * * *",
	}
}

func newTestService(t *testing.T) (*Service, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore(category.DefaultMaxTokens)
	svc, err := NewWithStore(testConfig(), st)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, st
}

func TestRememberAndRecall(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Remember(ctx, "alice", "My car is a silver 2019 Subaru Outback", nil)
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if f.ID == "" {
		t.Fatal("remember returned empty id")
	}
	if f.Category != category.VehiclesTransport {
		t.Errorf("routed to %s, want %s", f.Category, category.VehiclesTransport)
	}
	if f.TokenCount <= 0 {
		t.Errorf("token count = %d, want > 0", f.TokenCount)
	}
	if f.RelevanceScore < 0.2 || f.RelevanceScore > 1.0 {
		t.Errorf("initial relevance %v outside confidence bounds", f.RelevanceScore)
	}

	res := svc.Recall(ctx, "alice", "what car do I drive", 0)
	if res.Status != assembly.StatusOK {
		t.Fatalf("recall status = %s, want ok", res.Status)
	}
	if len(res.Fragments) == 0 || res.Fragments[0].ID != f.ID {
		t.Errorf("recall missed the stored memory: %+v", res.Fragments)
	}
}

func TestRemember_RejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Remember(ctx, "alice", "   ", nil); err == nil {
		t.Error("empty content accepted")
	}
	if _, err := svc.Remember(ctx, "", "valid content", nil); err == nil {
		t.Error("empty user id accepted")
	}
}

func TestRemember_EvictsWhenFull(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// Fill the category the next remember will route to up to its quota.
	for i := 0; i < 10; i++ {
		if _, err := st.WriteFragment(ctx, store.Fragment{
			UserID:         "alice",
			Category:       category.VehiclesTransport,
			Content:        "filler maintenance log",
			TokenCount:     5000,
			RelevanceScore: 0.05,
		}); err != nil {
			t.Fatal(err)
		}
	}

	f, err := svc.Remember(ctx, "alice", "My car is a silver 2019 Subaru Outback", nil)
	if err != nil {
		t.Fatalf("remember into full category: %v", err)
	}
	if f.Category != category.VehiclesTransport {
		t.Fatalf("routed to %s", f.Category)
	}

	usage, err := st.GetCategoryUsage(ctx, "alice", category.VehiclesTransport)
	if err != nil {
		t.Fatal(err)
	}
	if usage.CurrentTokens > usage.MaxTokens {
		t.Errorf("quota violated after eviction: %d > %d", usage.CurrentTokens, usage.MaxTokens)
	}
	if usage.CurrentTokens >= 50000 {
		t.Errorf("nothing evicted, usage still %d", usage.CurrentTokens)
	}
	if st.MetricCount("service.remember_evicted_tokens") != 1 {
		t.Error("eviction metric not recorded")
	}
}

func TestRoute_DoesNotPersist(t *testing.T) {
	svc, st := newTestService(t)

	res := svc.Route("alice", "I have chest pain, should I go to the hospital?")
	if res.PrimaryCategory != category.HealthWellness {
		t.Errorf("routed to %s, want %s", res.PrimaryCategory, category.HealthWellness)
	}

	frags, err := st.FetchCandidates(context.Background(), "alice", category.HealthWellness, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 0 {
		t.Errorf("route persisted %d fragments", len(frags))
	}
}

func TestCreateDynamicCategory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	name, err := svc.CreateDynamicCategory(ctx, "alice", "wedding planning")
	if err != nil {
		t.Fatalf("create dynamic: %v", err)
	}
	if !category.IsDynamicName(name) {
		t.Errorf("got %s, want a dynamic slot name", name)
	}

	again, err := svc.CreateDynamicCategory(ctx, "alice", "wedding planning")
	if err != nil {
		t.Fatal(err)
	}
	if again != name {
		t.Errorf("same focus reallocated: %s vs %s", again, name)
	}

	if _, err := svc.CreateDynamicCategory(ctx, "alice", "  "); err == nil {
		t.Error("blank focus accepted")
	}
}

func TestCategoryStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Remember(ctx, "alice", "My car is a silver 2019 Subaru Outback", nil); err != nil {
		t.Fatal(err)
	}

	states, err := svc.CategoryStats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("got %d category states, want 1", len(states))
	}
	if states[0].Name != category.VehiclesTransport || states[0].CurrentTokens <= 0 {
		t.Errorf("unexpected state: %+v", states[0])
	}
}

func TestSweepRepairsDrift(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// Inject a drifted accounting row, then run the sweep body directly.
	if err := st.UpsertCategoryState(ctx, store.CategoryState{
		UserID: "bob", Name: category.WorkCareer, Active: true,
		MaxTokens: category.DefaultMaxTokens, CurrentTokens: 777,
	}); err != nil {
		t.Fatal(err)
	}

	svc.sweep()

	usage, err := st.GetCategoryUsage(ctx, "bob", category.WorkCareer)
	if err != nil {
		t.Fatal(err)
	}
	if usage.CurrentTokens != 0 {
		t.Errorf("sweep left drifted tokens: %d", usage.CurrentTokens)
	}
	if st.MetricCount("sweep.corrected_categories") != 1 {
		t.Error("sweep metric not recorded")
	}
}

func TestSweepGate_OncePerDueMinute(t *testing.T) {
	gate := newSweepGate()
	minute := time.Date(2026, 8, 31, 10, 15, 0, 0, time.UTC)

	if !gate.due("* * * * *", minute) {
		t.Fatal("due minute not detected")
	}
	if gate.due("* * * * *", minute.Add(30*time.Second)) {
		t.Error("second tick in the same minute fired again")
	}
	if !gate.due("* * * * *", minute.Add(time.Minute)) {
		t.Error("next minute did not fire")
	}
	if gate.due("not a schedule", minute.Add(2*time.Minute)) {
		t.Error("invalid schedule fired")
	}
}

func TestServiceClose_Idempotent(t *testing.T) {
	st := store.NewMemStore(category.DefaultMaxTokens)
	svc, err := NewWithStore(testConfig(), st)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNew_OpensProviderChain(t *testing.T) {
	cfg := testConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "state", "memgate.db")

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()
	if svc.Provider() != "sqlite" {
		t.Errorf("provider = %s, want sqlite", svc.Provider())
	}
}
