// Package allergen is the single source of truth for allergen taxonomy:
// canonical names, synonym normalization, cuisine heuristics, severity and
// confidence levels, and the warning templates rendered to end users.
package allergen

import "strings"

// Severity is a user-side danger level for an allergen. Lower rank is more
// dangerous.
type Severity string

const (
	SeverityAnaphylactic Severity = "anaphylactic"
	SeveritySevere       Severity = "severe"
	SeverityModerate     Severity = "moderate"
	SeverityIntolerance  Severity = "intolerance"
)

var severityRank = map[Severity]int{
	SeverityAnaphylactic: 0,
	SeveritySevere:       1,
	SeverityModerate:     2,
	SeverityIntolerance:  3,
}

// Rank returns the danger ordering of s, 0 being the most dangerous.
// Unknown severities rank as severe.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeveritySevere]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity normalizes a raw severity string, defaulting to severe for
// anything unrecognized. Confirmed allergens with no recorded severity are
// treated as severe rather than assumed mild.
func ParseSeverity(raw string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	return SeveritySevere
}

// Confidence describes how reliable a restaurant's allergen tags are.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // explicit data (e.g. review mentions)
	ConfidenceMedium Confidence = "medium" // cuisine heuristic
	ConfidenceLow    Confidence = "low"    // unknown/default
)

func ParseConfidence(raw string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(raw))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Canonical is the 14 major EU allergens plus common extras.
var Canonical = []string{
	"peanuts", "tree_nuts", "shellfish", "fish", "dairy", "eggs",
	"gluten", "soy", "sesame", "mustard", "celery", "lupin",
	"molluscs", "sulphites",
}

var canonicalSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Canonical))
	for _, a := range Canonical {
		m[a] = struct{}{}
	}
	return m
}()

// synonyms maps ingredient and regional names to canonical allergens.
var synonyms = map[string]string{
	"nuts": "tree_nuts", "cashews": "tree_nuts", "almonds": "tree_nuts",
	"walnuts": "tree_nuts", "pistachios": "tree_nuts",
	"milk": "dairy", "cheese": "dairy", "butter": "dairy",
	"cream": "dairy", "ghee": "dairy", "paneer": "dairy",
	"lactose": "dairy", "curd": "dairy",
	"wheat": "gluten", "barley": "gluten", "rye": "gluten",
	"flour": "gluten", "maida": "gluten", "bread": "gluten",
	"prawn": "shellfish", "crab": "shellfish", "lobster": "shellfish",
	"shrimp": "shellfish", "crayfish": "shellfish",
	"oyster": "molluscs", "clam": "molluscs", "squid": "molluscs",
	"soya": "soy", "tofu": "soy", "tempeh": "soy",
	"sulfites": "sulphites", "wine": "sulphites",
	"til": "sesame", "tahini": "sesame",
	"groundnut": "peanuts", "mungfali": "peanuts",
}

// Normalize maps a raw allergen or ingredient name to its canonical form.
// Unknown terms pass through lowercased so caller data is never dropped.
func Normalize(raw string) string {
	term := strings.ToLower(strings.TrimSpace(raw))
	if canon, ok := synonyms[term]; ok {
		return canon
	}
	return term
}

// IsCanonical reports whether name is one of the canonical allergens.
func IsCanonical(name string) bool {
	_, ok := canonicalSet[name]
	return ok
}

// CuisineRisks returns the allergens a cuisine is likely to involve. These
// are heuristics and only ever carry medium confidence.
func CuisineRisks(cuisine string) []string {
	return cuisineAllergenMap[strings.ToLower(strings.TrimSpace(cuisine))]
}

var cuisineAllergenMap = map[string][]string{
	"chinese":        {"peanuts", "soy", "shellfish", "gluten", "sesame"},
	"thai":           {"peanuts", "shellfish", "fish", "soy", "sesame", "tree_nuts"},
	"japanese":       {"fish", "shellfish", "soy", "sesame", "molluscs"},
	"indian":         {"dairy", "gluten", "mustard", "tree_nuts", "sesame"},
	"south indian":   {"dairy", "mustard", "sesame"},
	"north indian":   {"dairy", "gluten", "tree_nuts"},
	"mughlai":        {"dairy", "tree_nuts", "gluten"},
	"italian":        {"gluten", "dairy", "eggs"},
	"mexican":        {"gluten", "dairy"},
	"seafood":        {"shellfish", "fish", "molluscs"},
	"mediterranean":  {"gluten", "dairy", "fish", "sesame"},
	"middle eastern": {"sesame", "tree_nuts", "dairy", "gluten"},
	"continental":    {"dairy", "gluten", "eggs"},
	"bakery":         {"gluten", "dairy", "eggs"},
	"desserts":       {"dairy", "eggs", "gluten", "tree_nuts"},
	"biryani":        {"dairy", "gluten"},
	"street food":    {"gluten", "peanuts", "dairy"},
}

// WarningTemplate is the fixed rendering for one severity level. The message
// contains a %s placeholder for the allergen name.
type WarningTemplate struct {
	Level   string
	Icon    string
	Title   string
	Message string
}

var warningTemplates = map[Severity]WarningTemplate{
	SeverityAnaphylactic: {
		Level: "danger", Icon: "🚨", Title: "Anaphylaxis Risk",
		Message: "This restaurant may contain %s. Given your severe allergy, we strongly recommend calling ahead to confirm before visiting.",
	},
	SeveritySevere: {
		Level: "warning", Icon: "⚠️", Title: "Allergy Warning",
		Message: "This restaurant likely serves dishes containing %s. Please inform the staff of your allergy when you arrive.",
	},
	SeverityModerate: {
		Level: "caution", Icon: "⚡", Title: "Heads Up",
		Message: "Some dishes here may contain %s. Ask your server about allergen-free options before ordering.",
	},
	SeverityIntolerance: {
		Level: "info", Icon: "ℹ️", Title: "Note",
		Message: "This restaurant serves dishes with %s. Allergen-free options may be available — worth checking with staff.",
	},
}

// Template returns the warning template for a severity level.
func Template(s Severity) WarningTemplate {
	if t, ok := warningTemplates[s]; ok {
		return t
	}
	return warningTemplates[SeveritySevere]
}

// ConfidenceNote is appended to any warning whose restaurant data is not
// high confidence.
const ConfidenceNote = "Allergen data for this restaurant is estimated from cuisine type — always confirm with staff before ordering."
