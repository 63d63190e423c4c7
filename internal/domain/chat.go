package domain

import (
	"github.com/savora-ai/savora-backend/internal/allergen"
)

// UIType tells the caller which component to render for a chat payload.
type UIType string

const (
	UITypeRestaurantList UIType = "restaurant_list"
	UITypeComparison     UIType = "radar_comparison"
	UITypeMapView        UIType = "map_view"
	UITypeText           UIType = "text"
)

func (u UIType) Valid() bool {
	switch u {
	case UITypeRestaurantList, UITypeComparison, UITypeMapView, UITypeText:
		return true
	}
	return false
}

// ParseUIType falls back to restaurant_list for anything unrecognized, so a
// malformed model output can never produce an unknown UI hint.
func ParseUIType(raw string) UIType {
	u := UIType(raw)
	if u.Valid() {
		return u
	}
	return UITypeRestaurantList
}

// ChatMessage is a single turn of conversation history.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// AllergyWarning is one structured warning attached to a restaurant result.
type AllergyWarning struct {
	Allergen       string              `json:"allergen"`
	Severity       allergen.Severity   `json:"severity"`
	Level          string              `json:"level"`
	Icon           string              `json:"icon"`
	Title          string              `json:"title"`
	Message        string              `json:"message"`
	Confidence     allergen.Confidence `json:"confidence"`
	ConfidenceNote string              `json:"confidence_note,omitempty"`
}

// RadarScores holds the fixed evaluation rubric, each dimension 0-10.
type RadarScores struct {
	Ambiance    float64 `json:"ambiance"`
	Quietness   float64 `json:"quietness"`
	FoodQuality float64 `json:"food_quality"`
	PlantBased  float64 `json:"plant_based"`
	Value       float64 `json:"value"`
}

// Composite is the ranking score used by the orchestrator's evaluate step:
// the mean of every rubric dimension except quietness.
func (s RadarScores) Composite() float64 {
	return (s.Ambiance + s.FoodQuality + s.PlantBased + s.Value) / 4
}

// RestaurantResult is a restaurant as it appears in any user-facing payload.
// AllergySafe and AllergyWarnings are always set by the safety guard before
// a result leaves the service layer.
type RestaurantResult struct {
	ID                 int64               `json:"id"`
	Name               string              `json:"name"`
	Area               string              `json:"area,omitempty"`
	Address            string              `json:"address,omitempty"`
	URL                string              `json:"url,omitempty"`
	PriceTier          string              `json:"price_tier,omitempty"`
	Rating             *float64            `json:"rating,omitempty"`
	Votes              int                 `json:"votes"`
	CuisineTypes       []string            `json:"cuisine_types"`
	Lat                *float64            `json:"lat,omitempty"`
	Lng                *float64            `json:"lng,omitempty"`
	KnownAllergens     []string            `json:"known_allergens"`
	AllergenConfidence allergen.Confidence `json:"allergen_confidence"`
	Meta               map[string]any      `json:"meta"`

	// Review allergen mentions attached by the search layer; consumed by
	// the safety guard's text scan. Not serialized to callers.
	ReviewMentions []string `json:"-"`

	AllergySafe     bool             `json:"allergy_safe"`
	AllergyWarnings []AllergyWarning `json:"allergy_warnings"`

	Scores *RadarScores `json:"scores,omitempty"`
}

// ResultFromRestaurant converts a stored restaurant into its payload shape.
func ResultFromRestaurant(r *Restaurant) RestaurantResult {
	meta := map[string]any(r.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	return RestaurantResult{
		ID:                 r.ID,
		Name:               r.Name,
		Area:               r.Area,
		Address:            r.Address,
		URL:                r.URL,
		PriceTier:          r.PriceTier,
		Rating:             r.Rating,
		Votes:              r.Votes,
		CuisineTypes:       []string(r.CuisineTypes),
		Lat:                r.Lat,
		Lng:                r.Lng,
		KnownAllergens:     []string(r.KnownAllergens),
		AllergenConfidence: r.AllergenConfidence,
		Meta:               meta,
		AllergySafe:        true,
		AllergyWarnings:    []AllergyWarning{},
	}
}

// UIPayload is the terminal payload of every chat turn.
type UIPayload struct {
	UIType             UIType             `json:"ui_type"`
	Message            string             `json:"message"`
	Restaurants        []RestaurantResult `json:"restaurants"`
	FlaggedRestaurants []RestaurantResult `json:"flagged_restaurants"`
	HasAllergyWarnings bool               `json:"has_allergy_warnings"`

	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
}

// FallbackPayload is returned whenever a chat turn fails in a way the
// orchestrator cannot recover from. It never leaks internal error detail.
func FallbackPayload() UIPayload {
	return UIPayload{
		UIType:             UITypeText,
		Message:            "I'm having trouble right now — try rephrasing your request.",
		Restaurants:        []RestaurantResult{},
		FlaggedRestaurants: []RestaurantResult{},
	}
}
