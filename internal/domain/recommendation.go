package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/savora-ai/savora-backend/internal/allergen"
)

// FitTag is one human-readable explanation of why a restaurant fits.
type FitTag struct {
	Label string `json:"label"`
	Type  string `json:"type"` // cuisine | vibe | price | dietary | allergy_safe
}

// FitResult is the output of the fit scorer: a 0-100 score and at most four
// tags, highest-value dimensions first.
type FitResult struct {
	Score int      `json:"score"`
	Tags  []FitTag `json:"fit_tags"`
}

// AllergySummary is the compact allergy block on a collapsed feed card.
type AllergySummary struct {
	IsSafe   bool             `json:"is_safe"`
	Warnings []AllergyWarning `json:"warnings"`
}

// RecommendationItem is a single ranked entry of the personalized feed.
type RecommendationItem struct {
	Rank               int              `json:"rank"`
	Restaurant         RestaurantResult `json:"restaurant"`
	FitScore           int              `json:"fit_score"`
	FitTags            []FitTag         `json:"fit_tags"`
	ConsolidatedReview string           `json:"consolidated_review"`
	AllergySummary     AllergySummary   `json:"allergy_summary"`
}

// RecommendationPayload is the full daily feed for one user.
type RecommendationPayload struct {
	UID             uuid.UUID            `json:"uid"`
	GeneratedAt     time.Time            `json:"generated_at"`
	Recommendations []RecommendationItem `json:"recommendations"`
}

// Highlight is one bullet inside the expanded detail panel.
type Highlight struct {
	Icon string `json:"icon"`
	Text string `json:"text"`
}

// AllergyDetail is the full allergy block of the expanded view.
type AllergyDetail struct {
	IsSafe     bool                `json:"is_safe"`
	Confidence allergen.Confidence `json:"confidence"`
	Warnings   []AllergyWarning    `json:"warnings"`
	SafeNote   string              `json:"safe_note,omitempty"`
}

// ExpandedDetail is the rich per-restaurant view. It is computed fresh on
// every call and never cached.
type ExpandedDetail struct {
	ReviewSummary   string      `json:"review_summary"`
	Highlights      []Highlight `json:"highlights"`
	CrowdProfile    string      `json:"crowd_profile"`
	BestFor         []string    `json:"best_for"`
	AvoidIf         []string    `json:"avoid_if"`
	RadarScores     RadarScores `json:"radar_scores"`
	WhyFitParagraph string      `json:"why_fit_paragraph"`
	AllergyDetail   AllergyDetail `json:"allergy_detail"`
}

// ExpandedDetailResponse wraps the expanded view for the API.
type ExpandedDetailResponse struct {
	RestaurantID   int64          `json:"restaurant_id"`
	ExpandedDetail ExpandedDetail `json:"expanded_detail"`
}
