package router

import "github.com/sethgregory/memgate/pkg/category"

// profile holds the routing signals for one category: weighted keywords,
// higher-weight phrases, semantic clusters that earn a co-occurrence bonus,
// and subcategory keyword sets for the second-pass selection.
type profile struct {
	keywords      map[string]float64
	phrases       map[string]float64
	clusters      [][]string
	subcategories map[string][]string
}

const (
	clusterBonus = 2.0
	entityBonus  = 2.5
)

// profiles is the canonical category→signal table, built once at package
// init and treated as immutable.
var profiles = map[string]profile{
	category.PersonalIdentity: {
		keywords: map[string]float64{
			"name": 1.5, "birthday": 2.0, "age": 1.0, "myself": 1.5,
			"identity": 2.0, "values": 1.5, "goal": 1.5, "goals": 1.5,
			"dream": 1.2, "background": 1.2, "grew": 1.0, "hometown": 2.0,
			"religion": 1.5, "belief": 1.2,
		},
		phrases: map[string]float64{
			"my name is": 4.0, "call me": 3.0, "who am i": 4.0,
			"about myself": 3.0, "i grew up": 3.0, "my goal is": 3.0,
		},
		clusters: [][]string{
			{"name", "age", "birthday"},
			{"goal", "dream", "future"},
		},
		subcategories: map[string][]string{
			"profile":    {"name", "age", "birthday", "pronouns", "hometown"},
			"background": {"grew", "childhood", "school", "raised", "history"},
			"values":     {"values", "belief", "religion", "principle"},
			"goals":      {"goal", "goals", "dream", "ambition", "plan"},
		},
	},
	category.RelationshipsFamily: {
		keywords: map[string]float64{
			"family": 2.0, "wife": 2.0, "husband": 2.0, "partner": 1.8,
			"mom": 2.0, "dad": 2.0, "mother": 2.0, "father": 2.0,
			"sister": 1.8, "brother": 1.8, "daughter": 2.0, "son": 2.0,
			"kids": 1.8, "children": 1.8, "friend": 1.5, "friends": 1.5,
			"dog": 1.8, "cat": 1.8, "pet": 2.0, "puppy": 1.8, "kitten": 1.8,
			"wedding": 1.5, "anniversary": 1.5,
		},
		phrases: map[string]float64{
			"my wife": 4.0, "my husband": 4.0, "my kids": 4.0,
			"my dog": 4.0, "my cat": 4.0, "my best friend": 3.5,
			"family reunion": 3.0,
		},
		clusters: [][]string{
			{"family", "kids", "home"},
			{"dog", "cat", "vet"},
		},
		subcategories: map[string][]string{
			"family":  {"family", "wife", "husband", "mom", "dad", "daughter", "son", "kids"},
			"friends": {"friend", "friends", "buddy", "roommate"},
			"pets":    {"dog", "cat", "pet", "puppy", "kitten", "vet"},
			"social":  {"party", "wedding", "gathering", "neighbors"},
		},
	},
	category.HealthWellness: {
		keywords: map[string]float64{
			"doctor": 2.0, "health": 2.0, "pain": 1.8, "hospital": 2.0,
			"medication": 2.0, "medicine": 1.8, "symptom": 1.8, "allergy": 2.0,
			"allergic": 2.0, "diagnosis": 2.0, "surgery": 2.0, "injury": 1.8,
			"sick": 1.5, "fever": 1.5, "sleep": 1.2, "exercise": 1.5,
			"workout": 1.5, "appointment": 1.2, "dentist": 1.8, "therapy": 1.2,
		},
		phrases: map[string]float64{
			"chest pain": 4.0, "blood pressure": 3.5, "side effects": 3.0,
			"doctor appointment": 3.5, "allergic to": 3.5,
		},
		clusters: [][]string{
			{"doctor", "medication", "symptom"},
			{"exercise", "workout", "sleep"},
		},
		subcategories: map[string][]string{
			"conditions":   {"diagnosis", "symptom", "condition", "allergy", "pain", "chronic"},
			"medications":  {"medication", "medicine", "prescription", "dose", "pill"},
			"fitness":      {"exercise", "workout", "gym", "running", "sleep", "diet"},
			"appointments": {"appointment", "doctor", "dentist", "checkup", "specialist"},
		},
	},
	category.MentalEmotional: {
		keywords: map[string]float64{
			"anxious": 2.0, "anxiety": 2.0, "depressed": 2.2, "depression": 2.2,
			"stress": 1.8, "stressed": 1.8, "overwhelmed": 2.0, "lonely": 2.0,
			"sad": 1.5, "angry": 1.5, "therapy": 2.0, "therapist": 2.0,
			"counseling": 2.0, "mood": 1.5, "burnout": 2.0, "grief": 2.0,
			"panic": 2.0,
		},
		phrases: map[string]float64{
			"mental health": 4.0, "panic attack": 4.0, "feeling down": 3.0,
			"can't cope": 3.5, "breaking down": 3.0,
		},
		clusters: [][]string{
			{"anxiety", "stress", "overwhelmed"},
			{"therapy", "therapist", "counseling"},
		},
		subcategories: map[string][]string{
			"mood":       {"sad", "angry", "mood", "anxious", "depressed", "lonely"},
			"stress":     {"stress", "stressed", "overwhelmed", "burnout", "pressure"},
			"support":    {"therapy", "therapist", "counseling", "support"},
			"milestones": {"breakthrough", "progress", "better", "improved"},
		},
	},
	category.WorkCareer: {
		keywords: map[string]float64{
			"work": 1.8, "job": 2.0, "boss": 1.8, "career": 2.0,
			"promotion": 2.0, "salary": 1.8, "meeting": 1.2, "project": 1.5,
			"deadline": 1.5, "interview": 2.0, "resume": 2.0, "client": 1.5,
			"business": 2.0, "company": 1.5, "startup": 2.0, "colleague": 1.5,
			"office": 1.2, "fired": 2.0, "hired": 2.0, "quit": 1.5,
		},
		phrases: map[string]float64{
			"my boss": 3.5, "job interview": 4.0, "got promoted": 4.0,
			"my business": 3.5, "new job": 3.5, "side hustle": 3.0,
		},
		clusters: [][]string{
			{"job", "boss", "office"},
			{"business", "client", "revenue"},
		},
		subcategories: map[string][]string{
			"job":      {"job", "boss", "office", "salary", "fired", "hired", "quit"},
			"projects": {"project", "deadline", "meeting", "launch"},
			"business": {"business", "startup", "client", "revenue", "company"},
			"skills":   {"skill", "course", "certification", "training", "learning"},
		},
	},
	category.FinanceLegal: {
		keywords: map[string]float64{
			"money": 1.8, "budget": 2.0, "debt": 2.2, "loan": 2.0,
			"mortgage": 2.0, "rent": 1.5, "savings": 2.0, "invest": 2.0,
			"investment": 2.0, "taxes": 2.0, "tax": 1.8, "bank": 1.5,
			"credit": 1.8, "bill": 1.5, "bills": 1.5, "insurance": 1.8,
			"lawyer": 2.0, "legal": 2.0, "contract": 1.8, "lease": 1.8,
		},
		phrases: map[string]float64{
			"credit card": 3.5, "student loan": 3.5, "pay off": 3.0,
			"interest rate": 3.0, "tax return": 3.5,
		},
		clusters: [][]string{
			{"debt", "loan", "credit"},
			{"savings", "invest", "budget"},
		},
		subcategories: map[string][]string{
			"budget":      {"budget", "spending", "bill", "bills", "rent"},
			"debts":       {"debt", "loan", "mortgage", "credit", "owe"},
			"investments": {"invest", "investment", "savings", "stocks", "retirement"},
			"obligations": {"taxes", "tax", "insurance", "lawyer", "legal", "contract", "lease"},
		},
	},
	category.HomeHousehold: {
		keywords: map[string]float64{
			"house": 1.8, "home": 1.5, "apartment": 1.8, "kitchen": 1.5,
			"garage": 1.5, "yard": 1.5, "garden": 1.5, "repair": 1.8,
			"renovation": 2.0, "furniture": 1.8, "appliance": 1.8,
			"plumber": 2.0, "electrician": 2.0, "landlord": 1.8,
			"cleaning": 1.2, "laundry": 1.2, "utilities": 1.8,
		},
		phrases: map[string]float64{
			"my house": 3.0, "my apartment": 3.0, "water heater": 3.0,
			"moving in": 3.0, "leaky faucet": 3.0,
		},
		clusters: [][]string{
			{"repair", "plumber", "electrician"},
			{"kitchen", "appliance", "furniture"},
		},
		subcategories: map[string][]string{
			"residence":   {"house", "home", "apartment", "landlord", "moving"},
			"maintenance": {"repair", "renovation", "plumber", "electrician", "fix"},
			"purchases":   {"furniture", "appliance", "bought", "ordered"},
			"utilities":   {"utilities", "electric", "water", "internet", "heating"},
		},
	},
	category.VehiclesTransport: {
		keywords: map[string]float64{
			"car": 2.0, "truck": 1.8, "motorcycle": 2.0, "drive": 1.5,
			"driving": 1.5, "mechanic": 2.0, "oil": 1.2, "tires": 1.8,
			"brakes": 1.8, "engine": 1.8, "mileage": 1.8, "commute": 1.8,
			"bus": 1.2, "train": 1.2, "bike": 1.5, "gas": 1.2,
			"registration": 1.5, "parking": 1.2,
		},
		phrases: map[string]float64{
			"my car": 3.5, "oil change": 4.0, "check engine": 4.0,
			"flat tire": 3.5, "car payment": 3.0,
		},
		clusters: [][]string{
			{"car", "mechanic", "engine"},
			{"commute", "bus", "train"},
		},
		subcategories: map[string][]string{
			"vehicles":    {"car", "truck", "motorcycle", "bike"},
			"maintenance": {"mechanic", "oil", "tires", "brakes", "engine", "repair"},
			"commute":     {"commute", "bus", "train", "parking", "traffic"},
			"trips":       {"road", "drive", "driving", "mileage"},
		},
	},
	category.HobbiesLeisure: {
		keywords: map[string]float64{
			"hobby": 2.0, "guitar": 1.8, "piano": 1.8, "painting": 1.8,
			"photography": 1.8, "gaming": 1.8, "game": 1.2, "reading": 1.5,
			"book": 1.2, "movie": 1.5, "show": 1.0, "music": 1.5,
			"hiking": 1.8, "fishing": 1.8, "golf": 1.8, "soccer": 1.5,
			"basketball": 1.5, "collection": 1.8, "woodworking": 2.0,
		},
		phrases: map[string]float64{
			"in my free time": 3.5, "weekend hobby": 3.0, "been playing": 3.0,
			"favorite show": 3.0, "book club": 3.0,
		},
		clusters: [][]string{
			{"guitar", "piano", "music"},
			{"hiking", "fishing", "outdoors"},
		},
		subcategories: map[string][]string{
			"hobbies":     {"hobby", "guitar", "piano", "painting", "photography", "woodworking"},
			"sports":      {"golf", "soccer", "basketball", "hiking", "fishing", "gym"},
			"media":       {"movie", "show", "book", "reading", "gaming", "game", "music"},
			"collections": {"collection", "collect", "cards", "vinyl"},
		},
	},
	category.FoodDining: {
		keywords: map[string]float64{
			"food": 1.8, "cooking": 1.8, "recipe": 2.0, "restaurant": 2.0,
			"dinner": 1.5, "lunch": 1.2, "breakfast": 1.2, "vegetarian": 2.0,
			"vegan": 2.0, "gluten": 2.0, "coffee": 1.5, "pizza": 1.5,
			"sushi": 1.5, "baking": 1.8, "spicy": 1.5, "dessert": 1.5,
			"takeout": 1.5,
		},
		phrases: map[string]float64{
			"favorite food": 3.5, "allergic to": 3.0, "can't eat": 3.5,
			"new restaurant": 3.0, "love cooking": 3.0,
		},
		clusters: [][]string{
			{"cooking", "recipe", "baking"},
			{"restaurant", "dinner", "takeout"},
		},
		subcategories: map[string][]string{
			"preferences":  {"favorite", "love", "spicy", "coffee", "pizza", "sushi"},
			"restrictions": {"vegetarian", "vegan", "gluten", "allergic", "intolerant"},
			"recipes":      {"recipe", "cooking", "baking", "homemade"},
			"restaurants":  {"restaurant", "takeout", "dinner", "reservation"},
		},
	},
	category.TravelPlaces: {
		keywords: map[string]float64{
			"travel": 2.0, "trip": 2.0, "vacation": 2.0, "flight": 2.0,
			"hotel": 1.8, "airport": 1.8, "passport": 2.0, "visa": 1.8,
			"beach": 1.5, "mountains": 1.5, "city": 1.0, "abroad": 1.8,
			"itinerary": 2.0, "booking": 1.5, "visited": 1.5, "visiting": 1.5,
		},
		phrases: map[string]float64{
			"going to": 2.5, "planning a trip": 4.0, "on vacation": 3.5,
			"booked a flight": 3.5, "bucket list": 3.0,
		},
		clusters: [][]string{
			{"flight", "hotel", "airport"},
			{"vacation", "beach", "trip"},
		},
		subcategories: map[string][]string{
			"trips":        {"trip", "vacation", "visiting", "itinerary"},
			"destinations": {"beach", "mountains", "city", "abroad", "country"},
			"logistics":    {"flight", "hotel", "airport", "passport", "visa", "booking"},
			"memories":     {"visited", "remember", "amazing", "photos"},
		},
	},
}
