package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type recFixture struct {
	svc         *RecommendationService
	ai          *fakeAI
	cache       *fakeCache
	users       *fakeUserRepo
	restaurants *fakeRestaurantRepo
	reviews     *fakeReviewRepo
}

func newRecFixture(ai *fakeAI, rows []*domain.Restaurant) *recFixture {
	users := newFakeUserRepo()
	cache := newFakeCache()
	restaurants := &fakeRestaurantRepo{rows: rows}
	reviews := &fakeReviewRepo{}
	svc := NewRecommendationService(
		logger.NewNop(), ai, cache, users, restaurants, reviews,
		NewFitScorer(), NewAllergyGuard(logger.NewNop()),
	)
	return &recFixture{svc: svc, ai: ai, cache: cache, users: users, restaurants: restaurants, reviews: reviews}
}

func feedUser(fx *recFixture, allergies datatypes.JSONMap) uuid.UUID {
	uid := uuid.New()
	if allergies == nil {
		allergies = datatypes.JSONMap{}
	}
	fx.users.users[uid] = &domain.User{
		UID:         uid,
		Preferences: datatypes.JSONMap{"cuisine_affinity": []any{"italian"}},
		Allergies:   allergies,
	}
	return uid
}

func feedRows(n int) []*domain.Restaurant {
	out := make([]*domain.Restaurant, 0, n)
	for i := int64(1); i <= int64(n); i++ {
		out = append(out, searchRow(i, "R", 4.0+float64(i)/100, "italian"))
	}
	return out
}

func TestFeedCachedForTheDay(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(12))
	uid := feedUser(fx, nil)

	first, err := fx.svc.Get(context.Background(), uid, 10, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(first.Recommendations) != 10 {
		t.Fatalf("recommendations = %d, want 10", len(first.Recommendations))
	}
	if fx.cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", fx.cache.sets)
	}

	second, err := fx.svc.Get(context.Background(), uid, 10, false)
	if err != nil {
		t.Fatalf("Get(cached): %v", err)
	}
	if fx.cache.sets != 1 {
		t.Fatal("second same-day call must be served from cache")
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatal("cached payload must be identical to the first")
	}
	for i := range first.Recommendations {
		if first.Recommendations[i].Restaurant.ID != second.Recommendations[i].Restaurant.ID {
			t.Fatalf("cached order diverged at %d", i)
		}
	}
}

func TestFeedCacheServesLargerSameDayLimit(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(12))
	uid := feedUser(fx, nil)

	first, err := fx.svc.Get(context.Background(), uid, 5, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(first.Recommendations) != 5 {
		t.Fatalf("recommendations = %d, want 5", len(first.Recommendations))
	}

	second, err := fx.svc.Get(context.Background(), uid, 10, false)
	if err != nil {
		t.Fatalf("Get(larger limit): %v", err)
	}
	if fx.cache.sets != 1 {
		t.Fatal("larger same-day limit must not trigger a rebuild")
	}
	if len(second.Recommendations) != 10 {
		t.Fatalf("recommendations = %d, want 10 from the cached full feed", len(second.Recommendations))
	}
}

func TestFeedForceRefreshDropsCache(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(5))
	uid := feedUser(fx, nil)

	if _, err := fx.svc.Get(context.Background(), uid, 5, false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := fx.svc.Get(context.Background(), uid, 5, true); err != nil {
		t.Fatalf("Get(refresh): %v", err)
	}
	if len(fx.cache.dels) != 1 {
		t.Fatalf("cache dels = %d, want 1", len(fx.cache.dels))
	}
	if fx.cache.sets != 2 {
		t.Fatalf("cache sets = %d, want recompute on refresh", fx.cache.sets)
	}
}

func TestFeedLimitClamped(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(40))
	uid := feedUser(fx, nil)

	payload, err := fx.svc.Get(context.Background(), uid, 99, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(payload.Recommendations) != maxFeedLimit {
		t.Fatalf("recommendations = %d, want clamped to %d", len(payload.Recommendations), maxFeedLimit)
	}
	for i, item := range payload.Recommendations {
		if item.Rank != i+1 {
			t.Fatalf("rank[%d] = %d, want %d", i, item.Rank, i+1)
		}
	}
}

func TestFeedExcludesAnaphylacticAtSource(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(3))
	uid := feedUser(fx, datatypes.JSONMap{
		"confirmed": []any{"peanuts", "dairy"},
		"severity":  map[string]any{"peanuts": "anaphylactic"},
	})

	if _, err := fx.svc.Get(context.Background(), uid, 3, false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := fx.restaurants.lastExclude
	if len(got) != 1 || got[0] != "peanuts" {
		t.Fatalf("repo exclusion = %v, want only the anaphylactic allergen", got)
	}
}

func TestFeedConsolidatedReviewFailureShipsWithoutSummaries(t *testing.T) {
	ai := &fakeAI{generateJSONFn: func(system, user string) (json.RawMessage, error) {
		return nil, errBoom
	}}
	fx := newRecFixture(ai, feedRows(3))
	fx.reviews.texts = map[int64][]string{1: {"great pasta"}, 2: {"lovely terrace"}}
	uid := feedUser(fx, nil)

	payload, err := fx.svc.Get(context.Background(), uid, 3, false)
	if err != nil {
		t.Fatalf("a summary failure must not fail the feed: %v", err)
	}
	for _, item := range payload.Recommendations {
		if item.ConsolidatedReview != "" {
			t.Fatalf("expected empty summaries, got %q", item.ConsolidatedReview)
		}
	}
}

func TestFeedUnknownUser(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(3))
	if _, err := fx.svc.Get(context.Background(), uuid.New(), 5, false); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestDayCacheKeyStableWithinDay(t *testing.T) {
	uid := uuid.New()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	later := day.Add(13 * time.Hour)
	tomorrow := day.Add(24 * time.Hour)

	if dayCacheKey(uid, day) != dayCacheKey(uid, later) {
		t.Fatal("key must be stable within a UTC day")
	}
	if dayCacheKey(uid, day) == dayCacheKey(uid, tomorrow) {
		t.Fatal("key must roll over at midnight UTC")
	}
	if got := len(dayCacheKey(uid, day)); got != len("rec:")+20 {
		t.Fatalf("key length = %d", got)
	}
}

func TestExpandBuildsDetailWithFallbackScores(t *testing.T) {
	ai := &fakeAI{generateJSONFn: func(system, user string) (json.RawMessage, error) {
		return nil, errBoom
	}}
	fx := newRecFixture(ai, feedRows(2))
	fx.reviews.texts = map[int64][]string{1: {"hidden gem", "great service"}}
	uid := feedUser(fx, nil)

	resp, err := fx.svc.Expand(context.Background(), uid, 1)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	d := resp.ExpandedDetail
	if d.RadarScores.Ambiance != 5 || d.RadarScores.Value != 5 {
		t.Fatalf("fallback radar = %+v, want neutral 5s", d.RadarScores)
	}
	if d.ReviewSummary == "" || d.WhyFitParagraph == "" {
		t.Fatalf("fallback detail missing text: %+v", d)
	}
	if !d.AllergyDetail.IsSafe {
		t.Fatalf("no allergies on file, detail must be safe: %+v", d.AllergyDetail)
	}
}

func TestExpandUnknownRestaurant(t *testing.T) {
	fx := newRecFixture(&fakeAI{}, feedRows(1))
	uid := feedUser(fx, nil)
	if _, err := fx.svc.Expand(context.Background(), uid, 999); err != ErrRestaurantNotFound {
		t.Fatalf("err = %v, want ErrRestaurantNotFound", err)
	}
}
