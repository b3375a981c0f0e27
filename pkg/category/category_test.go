package category

import "testing"

func TestNewTable_StaticScheme(t *testing.T) {
	tbl := NewTable()

	names := tbl.Names()
	if len(names) != 11 {
		t.Fatalf("expected 11 static categories, got %d", len(names))
	}
	if names[0] != PersonalIdentity {
		t.Errorf("first category = %s, want %s", names[0], PersonalIdentity)
	}

	for _, name := range names {
		def, ok := tbl.Get(name)
		if !ok {
			t.Fatalf("Get(%s) missing", name)
		}
		if def.MaxTokens != DefaultMaxTokens {
			t.Errorf("%s quota = %d, want %d", name, def.MaxTokens, DefaultMaxTokens)
		}
		if len(def.Subcategories) != 4 {
			t.Errorf("%s has %d subcategories, want 4", name, len(def.Subcategories))
		}
	}
}

func TestTable_Related(t *testing.T) {
	tbl := NewTable()
	for _, name := range tbl.Names() {
		rel := tbl.Related(name)
		if len(rel) == 0 || len(rel) > 2 {
			t.Errorf("%s has %d related categories, want 1-2", name, len(rel))
		}
		for _, r := range rel {
			if r == name {
				t.Errorf("%s lists itself as related", name)
			}
			if _, ok := tbl.Get(r); !ok {
				t.Errorf("%s related to unknown category %s", name, r)
			}
		}
	}
}

func TestTable_GetDynamic(t *testing.T) {
	tbl := NewTable()

	def, ok := tbl.Get("dynamic_3")
	if !ok {
		t.Fatal("dynamic slot name should resolve")
	}
	if def.Name != "dynamic_3" || def.MaxTokens != DefaultMaxTokens {
		t.Errorf("unexpected dynamic definition: %+v", def)
	}
	if def.FirstSubcategory() != "general" {
		t.Errorf("dynamic subcategory = %s, want general", def.FirstSubcategory())
	}

	if _, ok := tbl.Get("no_such_category"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestDynamicSlotNames(t *testing.T) {
	slots := DynamicSlotNames()
	if len(slots) != DynamicSlotLimit {
		t.Fatalf("got %d slot names, want %d", len(slots), DynamicSlotLimit)
	}
	for _, s := range slots {
		if !IsDynamicName(s) {
			t.Errorf("IsDynamicName(%s) = false", s)
		}
	}
	if IsDynamicName("dynamic_") || IsDynamicName("dynamic_12") || IsDynamicName(PersonalIdentity) {
		t.Error("IsDynamicName accepted a non-slot name")
	}
}

func TestFallbackIsStatic(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Get(Fallback); !ok {
		t.Fatal("fallback category must exist in the static table")
	}
	if _, ok := tbl.Get(Default); !ok {
		t.Fatal("default category must exist in the static table")
	}
}
