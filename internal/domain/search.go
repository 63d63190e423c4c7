package domain

// SearchFilters is the structured half of a hybrid search query.
// ExcludeAllergens is the single authoritative safety input to the search
// layer: callers must populate it with every allergen they consider unsafe,
// and matching restaurants are removed before any ranking step sees them.
type SearchFilters struct {
	CuisineTypes     []string `json:"cuisine_types,omitempty"`
	PriceTiers       []string `json:"price_tiers,omitempty"`
	Area             string   `json:"area,omitempty"`
	MinRating        *float64 `json:"min_rating,omitempty"`
	ExcludeAllergens []string `json:"exclude_allergens"`
}
