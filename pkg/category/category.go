// Package category defines the fixed topical partition scheme: the static
// category set, per-category subcategories and token quotas, the adjacency
// table used for related-category fetches, and the dynamic slot pool. The
// Table is built once and never mutated afterwards.
package category

import "strings"

// DefaultMaxTokens is the per-category storage quota.
const DefaultMaxTokens = 50000

// DynamicSlotLimit caps the number of dynamic categories per user.
const DynamicSlotLimit = 5

// Static category names.
const (
	PersonalIdentity    = "personal_identity"
	RelationshipsFamily = "relationships_family"
	HealthWellness      = "health_wellness"
	MentalEmotional     = "mental_emotional"
	WorkCareer          = "work_career"
	FinanceLegal        = "finance_legal"
	HomeHousehold       = "home_household"
	VehiclesTransport   = "vehicles_transport"
	HobbiesLeisure      = "hobbies_leisure"
	FoodDining          = "food_dining"
	TravelPlaces        = "travel_places"
)

// Fallback is the pinned low-confidence destination; Default is the
// last-resort category when all routing logic fails.
const (
	Fallback = PersonalIdentity
	Default  = PersonalIdentity
)

// Category describes one partition of the memory space.
type Category struct {
	Name          string
	Subcategories []string
	MaxTokens     int
}

// FirstSubcategory is the default subcategory when no keyword matches.
func (c Category) FirstSubcategory() string {
	if len(c.Subcategories) == 0 {
		return "general"
	}
	return c.Subcategories[0]
}

// Table holds the immutable category scheme.
type Table struct {
	categories map[string]Category
	order      []string
	adjacency  map[string][]string
}

// NewTable builds the canonical table. Call once at startup.
func NewTable() *Table {
	defs := []Category{
		{Name: PersonalIdentity, Subcategories: []string{"profile", "background", "values", "goals"}},
		{Name: RelationshipsFamily, Subcategories: []string{"family", "friends", "pets", "social"}},
		{Name: HealthWellness, Subcategories: []string{"conditions", "medications", "fitness", "appointments"}},
		{Name: MentalEmotional, Subcategories: []string{"mood", "stress", "support", "milestones"}},
		{Name: WorkCareer, Subcategories: []string{"job", "projects", "business", "skills"}},
		{Name: FinanceLegal, Subcategories: []string{"budget", "debts", "investments", "obligations"}},
		{Name: HomeHousehold, Subcategories: []string{"residence", "maintenance", "purchases", "utilities"}},
		{Name: VehiclesTransport, Subcategories: []string{"vehicles", "maintenance", "commute", "trips"}},
		{Name: HobbiesLeisure, Subcategories: []string{"hobbies", "sports", "media", "collections"}},
		{Name: FoodDining, Subcategories: []string{"preferences", "restrictions", "recipes", "restaurants"}},
		{Name: TravelPlaces, Subcategories: []string{"trips", "destinations", "logistics", "memories"}},
	}

	t := &Table{
		categories: make(map[string]Category, len(defs)),
		order:      make([]string, 0, len(defs)),
		adjacency: map[string][]string{
			PersonalIdentity:    {RelationshipsFamily, MentalEmotional},
			RelationshipsFamily: {PersonalIdentity, MentalEmotional},
			HealthWellness:      {MentalEmotional, FoodDining},
			MentalEmotional:     {HealthWellness, RelationshipsFamily},
			WorkCareer:          {FinanceLegal, PersonalIdentity},
			FinanceLegal:        {WorkCareer, HomeHousehold},
			HomeHousehold:       {FinanceLegal, VehiclesTransport},
			VehiclesTransport:   {HomeHousehold, TravelPlaces},
			HobbiesLeisure:      {TravelPlaces, FoodDining},
			FoodDining:          {HealthWellness, HobbiesLeisure},
			TravelPlaces:        {VehiclesTransport, HobbiesLeisure},
		},
	}
	for _, def := range defs {
		if def.MaxTokens <= 0 {
			def.MaxTokens = DefaultMaxTokens
		}
		t.categories[def.Name] = def
		t.order = append(t.order, def.Name)
	}
	return t
}

// Get returns the category definition and whether it exists. Dynamic slot
// names resolve to a synthetic definition with the default quota.
func (t *Table) Get(name string) (Category, bool) {
	if c, ok := t.categories[name]; ok {
		return c, true
	}
	if IsDynamicName(name) {
		return Category{
			Name:          name,
			Subcategories: []string{"general"},
			MaxTokens:     DefaultMaxTokens,
		}, true
	}
	return Category{}, false
}

// Names returns the static category names in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Related returns up to two topically adjacent categories.
func (t *Table) Related(name string) []string {
	rel := t.adjacency[name]
	out := make([]string, len(rel))
	copy(out, rel)
	return out
}

// DynamicSlotNames lists every possible dynamic slot name.
func DynamicSlotNames() []string {
	return []string{"dynamic_1", "dynamic_2", "dynamic_3", "dynamic_4", "dynamic_5"}
}

// IsDynamicName reports whether name is one of the dynamic slots.
func IsDynamicName(name string) bool {
	return strings.HasPrefix(name, "dynamic_") && len(name) == len("dynamic_")+1
}
