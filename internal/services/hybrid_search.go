package services

import (
	"context"
	"sort"
	"strings"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/clients/openai"
	"github.com/savora-ai/savora-backend/internal/clients/pinecone"
	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

const (
	defaultSearchLimit = 15
	vectorTopK         = 50
)

// HybridSearchEngine combines semantic review search with structured SQL
// filtering. The allergen exclusion in the filters is enforced twice: once
// in SQL and once more here before anything is returned.
type HybridSearchEngine struct {
	log         *logger.Logger
	ai          openai.Client
	vectors     pinecone.VectorStore
	restaurants repos.RestaurantRepo
	reviews     repos.ReviewRepo
}

func NewHybridSearchEngine(
	log *logger.Logger,
	ai openai.Client,
	vectors pinecone.VectorStore,
	restaurants repos.RestaurantRepo,
	reviews repos.ReviewRepo,
) *HybridSearchEngine {
	return &HybridSearchEngine{
		log:         log.With("service", "HybridSearchEngine"),
		ai:          ai,
		vectors:     vectors,
		restaurants: restaurants,
		reviews:     reviews,
	}
}

// Search runs the hybrid query. Semantic ranking is best-effort: if the
// embedding or the vector index fails, results fall back to rating order and
// the failure is logged, never surfaced. The structured filters are always
// enforced.
func (s *HybridSearchEngine) Search(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.RestaurantResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vectorRank := s.semanticRank(ctx, query)

	rows, err := s.restaurants.ListForSearch(ctx, nil, filters)
	if err != nil {
		return nil, err
	}

	rows = filterCuisines(rows, filters.CuisineTypes)
	rows = excludeAllergens(rows, filters.ExcludeAllergens)

	results := make([]domain.RestaurantResult, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		results = append(results, domain.ResultFromRestaurant(r))
		ids = append(ids, r.ID)
	}

	if mentions, err := s.reviews.AllergenMentions(ctx, nil, ids); err != nil {
		s.log.Warn("Loading review allergen mentions failed", "error", err.Error())
	} else {
		for i := range results {
			results[i].ReviewMentions = mentions[results[i].ID]
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		ri, iRanked := vectorRank[results[i].ID]
		rj, jRanked := vectorRank[results[j].ID]
		switch {
		case iRanked && jRanked:
			return ri < rj
		case iRanked != jRanked:
			return iRanked
		default:
			return ratingOf(results[i]) > ratingOf(results[j])
		}
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// semanticRank returns restaurant id -> position in the vector ranking.
// An empty map means semantic ranking is unavailable for this query.
func (s *HybridSearchEngine) semanticRank(ctx context.Context, query string) map[int64]int {
	rank := map[int64]int{}
	query = strings.TrimSpace(query)
	if query == "" || s.ai == nil || s.vectors == nil {
		return rank
	}

	vec, err := s.ai.EmbedQuery(ctx, query)
	if err != nil {
		s.log.Warn("Query embedding failed; falling back to rating order", "error", err.Error())
		return rank
	}

	ids, err := s.vectors.QueryRestaurantIDs(ctx, vec, vectorTopK)
	if err != nil {
		s.log.Warn("Vector query failed; falling back to rating order", "error", err.Error())
		return rank
	}

	for i, id := range ids {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	return rank
}

// filterCuisines keeps restaurants serving at least one requested cuisine.
// Matching is case-insensitive and tolerant of sub-cuisines ("north indian"
// matches a filter for "indian").
func filterCuisines(rows []*domain.Restaurant, cuisines []string) []*domain.Restaurant {
	wanted := make([]string, 0, len(cuisines))
	for _, c := range cuisines {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			wanted = append(wanted, c)
		}
	}
	if len(wanted) == 0 {
		return rows
	}

	out := rows[:0]
	for _, r := range rows {
		if cuisineMatches(r.CuisineTypes, wanted) {
			out = append(out, r)
		}
	}
	return out
}

func cuisineMatches(have []string, wanted []string) bool {
	for _, h := range have {
		hl := strings.ToLower(strings.TrimSpace(h))
		for _, w := range wanted {
			if hl == w || strings.Contains(hl, w) || strings.Contains(w, hl) {
				return true
			}
		}
	}
	return false
}

// excludeAllergens re-applies the allergen exclusion in Go, with synonym
// normalization the SQL layer cannot do.
func excludeAllergens(rows []*domain.Restaurant, exclude []string) []*domain.Restaurant {
	if len(exclude) == 0 {
		return rows
	}
	banned := make(map[string]bool, len(exclude))
	for _, a := range exclude {
		if canon := allergen.Normalize(a); canon != "" {
			banned[canon] = true
		}
	}

	out := rows[:0]
	for _, r := range rows {
		unsafe := false
		for _, a := range r.KnownAllergens {
			if banned[allergen.Normalize(a)] {
				unsafe = true
				break
			}
		}
		if !unsafe {
			out = append(out, r)
		}
	}
	return out
}

func ratingOf(r domain.RestaurantResult) float64 {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}
