package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/domain"
)

// Dimension weights for the 0-100 fit score.
const (
	cuisineFullPoints    = 30
	cuisinePartialPoints = 15
	cuisineAversion      = -15
	vibePointsPerMatch   = 5
	vibeCap              = 25
	priceExactPoints     = 20
	priceAdjacentPoints  = 10
	dietaryPerMatch      = 5
	dietaryCap           = 15
	allergyClearPoints   = 10
	allergyMinorPoints   = 5

	maxFitTags = 4
)

// Tag tie-break order when dimensions contribute equal points.
var tagTypeOrder = map[string]int{
	"cuisine":      0,
	"vibe":         1,
	"price":        2,
	"dietary":      3,
	"allergy_safe": 4,
}

// FitScorer turns a user profile and a restaurant into an explainable
// 0-100 score. It is fully deterministic: same inputs, same score, no model
// calls.
type FitScorer struct{}

func NewFitScorer() *FitScorer { return &FitScorer{} }

type dimensionScore struct {
	points int
	tag    domain.FitTag
}

// Score computes the weighted fit of one restaurant for one profile, with
// at most four tags explaining the highest-value dimensions.
func (s *FitScorer) Score(profile domain.Profile, r domain.RestaurantResult) domain.FitResult {
	total := 0
	var dims []dimensionScore

	cuisineDim, penalty := scoreCuisine(profile, r)
	total += penalty
	if cuisineDim.points > 0 {
		total += cuisineDim.points
		dims = append(dims, cuisineDim)
	}
	if d := scoreVibe(profile, r); d.points > 0 {
		total += d.points
		dims = append(dims, d)
	}
	if d := scorePrice(profile, r); d.points > 0 {
		total += d.points
		dims = append(dims, d)
	}
	if d := scoreDietary(profile, r); d.points > 0 {
		total += d.points
		dims = append(dims, d)
	}
	if d := scoreAllergy(profile, r); d.points > 0 {
		total += d.points
		dims = append(dims, d)
	}

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	sort.SliceStable(dims, func(i, j int) bool {
		if dims[i].points != dims[j].points {
			return dims[i].points > dims[j].points
		}
		return tagTypeOrder[dims[i].tag.Type] < tagTypeOrder[dims[j].tag.Type]
	})

	tags := make([]domain.FitTag, 0, maxFitTags)
	for _, d := range dims {
		if len(tags) == maxFitTags {
			break
		}
		tags = append(tags, d.tag)
	}

	return domain.FitResult{Score: total, Tags: tags}
}

// scoreCuisine rewards affinity overlap and penalizes aversions. An exact
// cuisine match beats a partial one (e.g. "north indian" vs "indian"). The
// aversion penalty applies regardless of any affinity match.
func scoreCuisine(profile domain.Profile, r domain.RestaurantResult) (dimensionScore, int) {
	var (
		full    string
		partial string
	)
	for _, want := range profile.CuisineAffinity {
		w := strings.ToLower(strings.TrimSpace(want))
		if w == "" {
			continue
		}
		for _, have := range r.CuisineTypes {
			h := strings.ToLower(strings.TrimSpace(have))
			switch {
			case h == w:
				if full == "" {
					full = have
				}
			case strings.Contains(h, w) || strings.Contains(w, h):
				if partial == "" {
					partial = have
				}
			}
		}
	}

	penalty := 0
	for _, avoid := range profile.CuisineAversion {
		a := strings.ToLower(strings.TrimSpace(avoid))
		if a == "" {
			continue
		}
		for _, have := range r.CuisineTypes {
			h := strings.ToLower(strings.TrimSpace(have))
			if h == a || strings.Contains(h, a) || strings.Contains(a, h) {
				penalty = cuisineAversion
			}
		}
	}

	switch {
	case full != "":
		return dimensionScore{
			points: cuisineFullPoints,
			tag:    domain.FitTag{Label: fmt.Sprintf("%s match", titleWord(full)), Type: "cuisine"},
		}, penalty
	case partial != "":
		return dimensionScore{
			points: cuisinePartialPoints,
			tag:    domain.FitTag{Label: fmt.Sprintf("%s match", titleWord(partial)), Type: "cuisine"},
		}, penalty
	default:
		return dimensionScore{}, penalty
	}
}

// vibeMetaKeys are the restaurant metadata keys that may carry vibe tags,
// checked in order.
var vibeMetaKeys = []string{"vibes", "vibe_tags", "atmosphere", "tags"}

func scoreVibe(profile domain.Profile, r domain.RestaurantResult) dimensionScore {
	if len(profile.VibeTags) == 0 {
		return dimensionScore{}
	}

	have := map[string]bool{}
	for _, key := range vibeMetaKeys {
		for _, v := range metaStrings(r.Meta, key) {
			have[strings.ToLower(strings.TrimSpace(v))] = true
		}
	}
	if len(have) == 0 {
		return dimensionScore{}
	}

	points := 0
	var first string
	for _, want := range profile.VibeTags {
		w := strings.ToLower(strings.TrimSpace(want))
		if w != "" && have[w] {
			points += vibePointsPerMatch
			if first == "" {
				first = want
			}
		}
	}
	if points > vibeCap {
		points = vibeCap
	}
	if points == 0 {
		return dimensionScore{}
	}
	return dimensionScore{
		points: points,
		tag:    domain.FitTag{Label: fmt.Sprintf("%s vibe", titleWord(first)), Type: "vibe"},
	}
}

func scorePrice(profile domain.Profile, r domain.RestaurantResult) dimensionScore {
	tier := domain.PriceTierIndex(r.PriceTier)
	if tier < 0 || len(profile.PreferredPriceTiers) == 0 {
		return dimensionScore{}
	}

	bestDelta := -1
	for _, want := range profile.PreferredPriceTiers {
		w := domain.PriceTierIndex(want)
		if w < 0 {
			continue
		}
		delta := tier - w
		if delta < 0 {
			delta = -delta
		}
		if bestDelta == -1 || delta < bestDelta {
			bestDelta = delta
		}
	}

	switch bestDelta {
	case 0:
		return dimensionScore{
			points: priceExactPoints,
			tag:    domain.FitTag{Label: "In your price range", Type: "price"},
		}
	case 1:
		return dimensionScore{
			points: priceAdjacentPoints,
			tag:    domain.FitTag{Label: "Close to your budget", Type: "price"},
		}
	default:
		return dimensionScore{}
	}
}

var dietaryMetaKeys = []string{"dietary", "dietary_flags", "dietaries"}

func scoreDietary(profile domain.Profile, r domain.RestaurantResult) dimensionScore {
	if len(profile.DietaryFlags) == 0 {
		return dimensionScore{}
	}

	have := map[string]bool{}
	for _, key := range dietaryMetaKeys {
		for _, v := range metaStrings(r.Meta, key) {
			have[strings.ToLower(strings.TrimSpace(v))] = true
		}
	}
	// A vegan or vegetarian cuisine listing counts as an explicit flag.
	for _, c := range r.CuisineTypes {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "vegan") {
			have["vegan"] = true
		}
		if strings.Contains(lc, "vegetarian") {
			have["vegetarian"] = true
		}
	}
	if len(have) == 0 {
		return dimensionScore{}
	}

	points := 0
	var first string
	for _, want := range profile.DietaryFlags {
		w := strings.ToLower(strings.TrimSpace(want))
		if w != "" && have[w] {
			points += dietaryPerMatch
			if first == "" {
				first = want
			}
		}
	}
	if points > dietaryCap {
		points = dietaryCap
	}
	if points == 0 {
		return dimensionScore{}
	}
	return dimensionScore{
		points: points,
		tag:    domain.FitTag{Label: fmt.Sprintf("%s friendly", titleWord(first)), Type: "dietary"},
	}
}

// scoreAllergy rewards restaurants clear of the user's allergens. It reads
// only the stored allergen tags; the full multi-source check belongs to the
// safety guard.
func scoreAllergy(profile domain.Profile, r domain.RestaurantResult) dimensionScore {
	userSev := profile.Allergies.AllergySeverities()

	// An empty allergen set trivially has zero overlap, so allergen-free
	// users still earn the clear credit.
	worstOverlap := -1
	for _, a := range r.KnownAllergens {
		canon := allergen.Normalize(a)
		for name, raw := range userSev {
			if allergen.Normalize(name) != canon {
				continue
			}
			rank := allergen.ParseSeverity(raw).Rank()
			if worstOverlap == -1 || rank < worstOverlap {
				worstOverlap = rank
			}
		}
	}

	switch {
	case worstOverlap == -1:
		return dimensionScore{
			points: allergyClearPoints,
			tag:    domain.FitTag{Label: "Allergy-safe", Type: "allergy_safe"},
		}
	case worstOverlap == allergen.SeverityIntolerance.Rank():
		return dimensionScore{
			points: allergyMinorPoints,
			tag:    domain.FitTag{Label: "Mostly allergy-safe", Type: "allergy_safe"},
		}
	default:
		return dimensionScore{}
	}
}

func metaStrings(meta map[string]any, key string) []string {
	v, ok := meta[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

func titleWord(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
