package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	redisclients "github.com/savora-ai/savora-backend/internal/clients/redis"
	"github.com/savora-ai/savora-backend/internal/clients/openai"
	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

const (
	defaultFeedLimit   = 10
	maxFeedLimit       = 25
	feedCandidatePool  = 50
	feedReviewsPerItem = 5
	expandReviewCount  = 10
)

// RecommendationService builds the personalized daily feed and the expanded
// per-restaurant view. The feed is cached per user per UTC day; the expanded
// view is always computed fresh.
type RecommendationService struct {
	log         *logger.Logger
	ai          openai.Client
	cache       redisclients.Cache
	users       repos.UserRepo
	restaurants repos.RestaurantRepo
	reviews     repos.ReviewRepo
	scorer      *FitScorer
	guard       *AllergyGuard
}

func NewRecommendationService(
	log *logger.Logger,
	ai openai.Client,
	cache redisclients.Cache,
	users repos.UserRepo,
	restaurants repos.RestaurantRepo,
	reviews repos.ReviewRepo,
	scorer *FitScorer,
	guard *AllergyGuard,
) *RecommendationService {
	return &RecommendationService{
		log:         log.With("service", "RecommendationService"),
		ai:          ai,
		cache:       cache,
		users:       users,
		restaurants: restaurants,
		reviews:     reviews,
		scorer:      scorer,
		guard:       guard,
	}
}

// Get returns the user's feed for today, serving the cached payload when one
// exists. forceRefresh drops the cached day before recomputing.
func (s *RecommendationService) Get(ctx context.Context, uid uuid.UUID, limit int, forceRefresh bool) (*domain.RecommendationPayload, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	key := dayCacheKey(uid, time.Now().UTC())

	if forceRefresh {
		if err := s.cache.Del(ctx, key); err != nil {
			s.log.Warn("Dropping cached feed failed", "uid", uid, "error", err.Error())
		}
	} else if cached := s.readCached(ctx, key); cached != nil {
		trimFeed(cached, limit)
		return cached, nil
	}

	// Build and cache the full-size feed so later same-day calls with a
	// larger limit are still served from cache.
	payload, err := s.build(ctx, uid, maxFeedLimit)
	if err != nil {
		return nil, err
	}

	if raw, mErr := json.Marshal(payload); mErr != nil {
		s.log.Warn("Encoding feed for cache failed", "uid", uid, "error", mErr.Error())
	} else if cErr := s.cache.Set(ctx, key, raw, untilNextMidnightUTC(time.Now().UTC())); cErr != nil {
		s.log.Warn("Caching feed failed", "uid", uid, "error", cErr.Error())
	}

	trimFeed(payload, limit)
	return payload, nil
}

// Prewarm rebuilds the feed cache for a user. It is called from background
// goroutines and never returns an error.
func (s *RecommendationService) Prewarm(uid uuid.UUID) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("Feed prewarm panicked", "uid", uid, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := s.Get(ctx, uid, defaultFeedLimit, true); err != nil {
		s.log.Warn("Feed prewarm failed", "uid", uid, "error", err.Error())
	}
}

func (s *RecommendationService) readCached(ctx context.Context, key string) *domain.RecommendationPayload {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("Feed cache read failed", "key", key, "error", err.Error())
		return nil
	}
	if !ok {
		return nil
	}
	var payload domain.RecommendationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("Cached feed was unreadable; recomputing", "key", key, "error", err.Error())
		return nil
	}
	return &payload
}

func (s *RecommendationService) build(ctx context.Context, uid uuid.UUID, limit int) (*domain.RecommendationPayload, error) {
	user, err := s.users.GetByUID(ctx, nil, uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	profile := domain.ProfileFromUser(user)

	// Anaphylactic allergens never reach scoring at all.
	rows, err := s.restaurants.TopRatedActive(ctx, nil, profile.Allergies.Anaphylactic(), feedCandidatePool)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RestaurantResult, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		results = append(results, domain.ResultFromRestaurant(r))
		ids = append(ids, r.ID)
	}

	if mentions, mErr := s.reviews.AllergenMentions(ctx, nil, ids); mErr != nil {
		s.log.Warn("Loading review allergen mentions failed", "error", mErr.Error())
	} else {
		for i := range results {
			results[i].ReviewMentions = mentions[results[i].ID]
		}
	}

	type scored struct {
		result domain.RestaurantResult
		fit    domain.FitResult
	}
	all := make([]scored, 0, len(results))
	for _, r := range results {
		all = append(all, scored{result: r, fit: s.scorer.Score(profile, r)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].fit.Score != all[j].fit.Score {
			return all[i].fit.Score > all[j].fit.Score
		}
		return ratingOf(all[i].result) > ratingOf(all[j].result)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	top := make([]domain.RestaurantResult, 0, len(all))
	fitByID := make(map[int64]domain.FitResult, len(all))
	for _, sc := range all {
		top = append(top, sc.result)
		fitByID[sc.result.ID] = sc.fit
	}

	guarded := s.guard.Check(top, profile.Allergies)
	ordered := append(guarded.Safe, guarded.Flagged...)

	summaries := s.consolidatedReviews(ctx, ordered)

	items := make([]domain.RecommendationItem, 0, len(ordered))
	for i, r := range ordered {
		fit := fitByID[r.ID]
		items = append(items, domain.RecommendationItem{
			Rank:               i + 1,
			Restaurant:         r,
			FitScore:           fit.Score,
			FitTags:            fit.Tags,
			ConsolidatedReview: summaries[r.ID],
			AllergySummary: domain.AllergySummary{
				IsSafe:   r.AllergySafe,
				Warnings: r.AllergyWarnings,
			},
		})
	}

	return &domain.RecommendationPayload{
		UID:             uid,
		GeneratedAt:     time.Now().UTC(),
		Recommendations: items,
	}, nil
}

// consolidatedReviews makes one batched model call for every feed entry's
// one-line summary. On any failure every entry simply ships without one.
func (s *RecommendationService) consolidatedReviews(ctx context.Context, items []domain.RestaurantResult) map[int64]string {
	out := map[int64]string{}
	if len(items) == 0 {
		return out
	}

	texts := map[int64][]string{}
	names := map[int64]string{}
	for _, r := range items {
		recent, err := s.reviews.RecentTexts(ctx, nil, r.ID, feedReviewsPerItem)
		if err != nil {
			s.log.Warn("Loading reviews for summary failed", "restaurant_id", r.ID, "error", err.Error())
			continue
		}
		if len(recent) == 0 {
			continue
		}
		texts[r.ID] = recent
		names[r.ID] = r.Name
	}
	if len(texts) == 0 {
		return out
	}

	system, user := buildConsolidatedReviewPrompt(texts, names)
	raw, err := s.ai.GenerateJSON(ctx, system, user)
	if err != nil {
		s.log.Warn("Consolidated review generation failed", "error", err.Error())
		return out
	}

	var byID map[string]string
	if err := json.Unmarshal(raw, &byID); err != nil {
		s.log.Warn("Consolidated review output unreadable", "error", err.Error())
		return out
	}
	for idStr, sentence := range byID {
		id, pErr := strconv.ParseInt(idStr, 10, 64)
		if pErr != nil || sentence == "" {
			continue
		}
		out[id] = truncateRunes(sentence, 160)
	}
	return out
}

// Expand builds the rich detail view for one restaurant. It is computed
// fresh every time so review edits and profile changes show up immediately.
func (s *RecommendationService) Expand(ctx context.Context, uid uuid.UUID, restaurantID int64) (*domain.ExpandedDetailResponse, error) {
	user, err := s.users.GetByUID(ctx, nil, uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	profile := domain.ProfileFromUser(user)

	row, err := s.restaurants.GetActiveByID(ctx, nil, restaurantID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrRestaurantNotFound
	}
	result := domain.ResultFromRestaurant(row)

	var (
		reviewTexts []string
		mentions    map[int64][]string
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var rErr error
		reviewTexts, rErr = s.reviews.RecentTexts(gCtx, nil, restaurantID, expandReviewCount)
		return rErr
	})
	g.Go(func() error {
		var mErr error
		mentions, mErr = s.reviews.AllergenMentions(gCtx, nil, []int64{restaurantID})
		return mErr
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.ReviewMentions = mentions[restaurantID]

	guarded := s.guard.Check([]domain.RestaurantResult{result}, profile.Allergies)
	annotated := result
	if len(guarded.Safe) > 0 {
		annotated = guarded.Safe[0]
	} else if len(guarded.Flagged) > 0 {
		annotated = guarded.Flagged[0]
	}

	detail := s.generateDetail(ctx, profile, annotated, reviewTexts)
	detail.AllergyDetail = allergyDetail(annotated)

	return &domain.ExpandedDetailResponse{
		RestaurantID:   restaurantID,
		ExpandedDetail: detail,
	}, nil
}

func (s *RecommendationService) generateDetail(ctx context.Context, profile domain.Profile, r domain.RestaurantResult, reviews []string) domain.ExpandedDetail {
	fallback := fallbackDetail(profile, r, reviews)
	if len(reviews) == 0 {
		return fallback
	}

	system, user := buildExpandedDetailPrompt(profile, r, reviews)
	raw, err := s.ai.GenerateJSON(ctx, system, user)
	if err != nil {
		s.log.Warn("Expanded detail generation failed", "restaurant_id", r.ID, "error", err.Error())
		return fallback
	}

	var parsed struct {
		ReviewSummary string             `json:"review_summary"`
		Highlights    []domain.Highlight `json:"highlights"`
		CrowdProfile  string             `json:"crowd_profile"`
		BestFor       []string           `json:"best_for"`
		AvoidIf       []string           `json:"avoid_if"`
		RadarScores   map[string]float64 `json:"radar_scores"`
		WhyFit        string             `json:"why_fit_paragraph"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.log.Warn("Expanded detail output unreadable", "restaurant_id", r.ID, "error", err.Error())
		return fallback
	}

	detail := domain.ExpandedDetail{
		ReviewSummary:   firstNonEmpty(parsed.ReviewSummary, fallback.ReviewSummary),
		Highlights:      capHighlights(parsed.Highlights, 5),
		CrowdProfile:    firstNonEmpty(parsed.CrowdProfile, fallback.CrowdProfile),
		BestFor:         capStrings(parsed.BestFor, 4),
		AvoidIf:         capStrings(parsed.AvoidIf, 3),
		RadarScores:     radarFromMap(parsed.RadarScores),
		WhyFitParagraph: firstNonEmpty(parsed.WhyFit, fallback.WhyFitParagraph),
	}
	return detail
}

// fallbackDetail is the deterministic detail view used whenever the model
// cannot help. Radar dimensions default to a neutral 5.
func fallbackDetail(profile domain.Profile, r domain.RestaurantResult, reviews []string) domain.ExpandedDetail {
	summary := fmt.Sprintf("%s is a %s spot in %s.", r.Name, joinOr(r.CuisineTypes, "popular"), firstNonEmpty(r.Area, "Bangalore"))
	if len(reviews) > 0 {
		summary = truncateRunes(reviews[0], 240)
	}

	why := fmt.Sprintf("%s matches several of your saved preferences.", r.Name)
	if len(profile.CuisineAffinity) > 0 {
		why = fmt.Sprintf("%s lines up with your taste for %s.", r.Name, profile.CuisineAffinity[0])
	}

	return domain.ExpandedDetail{
		ReviewSummary:   summary,
		Highlights:      []domain.Highlight{},
		CrowdProfile:    "A mixed crowd of regulars and first-timers.",
		BestFor:         []string{},
		AvoidIf:         []string{},
		RadarScores:     domain.RadarScores{Ambiance: 5, Quietness: 5, FoodQuality: 5, PlantBased: 5, Value: 5},
		WhyFitParagraph: why,
	}
}

func allergyDetail(r domain.RestaurantResult) domain.AllergyDetail {
	detail := domain.AllergyDetail{
		IsSafe:     r.AllergySafe && len(r.AllergyWarnings) == 0,
		Confidence: r.AllergenConfidence,
		Warnings:   r.AllergyWarnings,
	}
	if detail.Warnings == nil {
		detail.Warnings = []domain.AllergyWarning{}
	}
	if detail.IsSafe {
		detail.SafeNote = "No allergens from your profile were detected for this restaurant. Still worth mentioning your allergy when ordering."
	}
	return detail
}

// -------------------- helpers --------------------

// dayCacheKey derives a stable per-user per-day cache key.
func dayCacheKey(uid uuid.UUID, now time.Time) string {
	sum := sha256.Sum256([]byte(uid.String() + now.Format("2006-01-02")))
	return "rec:" + hex.EncodeToString(sum[:])[:20]
}

func untilNextMidnightUTC(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}

func trimFeed(p *domain.RecommendationPayload, limit int) {
	if len(p.Recommendations) > limit {
		p.Recommendations = p.Recommendations[:limit]
	}
}

func radarFromMap(m map[string]float64) domain.RadarScores {
	get := func(key string) float64 {
		v, ok := m[key]
		if !ok || v < 0 || v > 10 {
			return 5
		}
		return v
	}
	return domain.RadarScores{
		Ambiance:    get("ambiance"),
		Quietness:   get("quietness"),
		FoodQuality: get("food_quality"),
		PlantBased:  get("plant_based"),
		Value:       get("value"),
	}
}

func capHighlights(in []domain.Highlight, max int) []domain.Highlight {
	out := make([]domain.Highlight, 0, max)
	for _, h := range in {
		if h.Text == "" {
			continue
		}
		out = append(out, h)
		if len(out) == max {
			break
		}
	}
	return out
}

func capStrings(in []string, max int) []string {
	out := make([]string, 0, max)
	for _, s := range in {
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinOr(vals []string, def string) string {
	if len(vals) == 0 {
		return def
	}
	if len(vals) > 2 {
		vals = vals[:2]
	}
	return strings.Join(vals, ", ")
}
