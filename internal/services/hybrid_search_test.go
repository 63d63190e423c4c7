package services

import (
	"context"
	"testing"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

func ptr[T any](v T) *T { return &v }

func searchRow(id int64, name string, rating float64, cuisines ...string) *domain.Restaurant {
	return &domain.Restaurant{
		ID:           id,
		Name:         name,
		Rating:       ptr(rating),
		CuisineTypes: cuisines,
		IsActive:     true,
	}
}

func newTestEngine(ai *fakeAI, vectors *fakeVectors, restaurants *fakeRestaurantRepo, reviews *fakeReviewRepo) *HybridSearchEngine {
	return NewHybridSearchEngine(logger.NewNop(), ai, vectors, restaurants, reviews)
}

func TestSearchRanksByVectorOrder(t *testing.T) {
	restaurants := &fakeRestaurantRepo{rows: []*domain.Restaurant{
		searchRow(1, "A", 4.9, "italian"),
		searchRow(2, "B", 3.1, "italian"),
		searchRow(3, "C", 4.0, "italian"),
	}}
	vectors := &fakeVectors{queryFn: func(q []float32, topK int) ([]int64, error) {
		return []int64{2, 3}, nil
	}}
	engine := newTestEngine(&fakeAI{}, vectors, restaurants, &fakeReviewRepo{})

	got, err := engine.Search(context.Background(), "cozy pasta", domain.SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	wantOrder := []int64{2, 3, 1} // vector hits first, then rating order
	if len(got) != len(wantOrder) {
		t.Fatalf("results = %d, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("got[%d].ID = %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestSearchEmbeddingFailureFallsBackToRating(t *testing.T) {
	restaurants := &fakeRestaurantRepo{rows: []*domain.Restaurant{
		searchRow(1, "Low", 3.0, "italian"),
		searchRow(2, "High", 4.8, "italian"),
	}}
	ai := &fakeAI{embedQueryFn: func(string) ([]float32, error) { return nil, errBoom }}
	engine := newTestEngine(ai, &fakeVectors{}, restaurants, &fakeReviewRepo{})

	got, err := engine.Search(context.Background(), "romantic dinner", domain.SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("embedding failure must not fail the search: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 {
		t.Fatalf("expected rating-ordered fallback, got %+v", got)
	}
}

func TestSearchFiltersCuisines(t *testing.T) {
	restaurants := &fakeRestaurantRepo{rows: []*domain.Restaurant{
		searchRow(1, "Pasta Place", 4.5, "Italian"),
		searchRow(2, "Dragon Wok", 4.6, "Chinese"),
		searchRow(3, "Delhi Darbar", 4.2, "North Indian"),
	}}
	engine := newTestEngine(&fakeAI{}, &fakeVectors{}, restaurants, &fakeReviewRepo{})

	got, err := engine.Search(context.Background(), "dinner", domain.SearchFilters{
		CuisineTypes: []string{"indian"},
	}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("cuisine filter kept %+v, want only id 3", got)
	}
}

func TestSearchExcludesAllergensWithSynonyms(t *testing.T) {
	unsafe := searchRow(1, "Nut Corner", 4.9, "chinese")
	unsafe.KnownAllergens = []string{"groundnut"}
	safe := searchRow(2, "Green Leaf", 4.1, "chinese")

	restaurants := &fakeRestaurantRepo{rows: []*domain.Restaurant{unsafe, safe}}
	engine := newTestEngine(&fakeAI{}, &fakeVectors{}, restaurants, &fakeReviewRepo{})

	got, err := engine.Search(context.Background(), "noodles", domain.SearchFilters{
		ExcludeAllergens: []string{"peanuts"},
	}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("allergen exclusion kept %+v, want only id 2", got)
	}
	if restaurants.lastFilters.ExcludeAllergens == nil {
		t.Fatal("exclusion must also be pushed down to the repo query")
	}
}

func TestSearchAttachesReviewMentionsAndCapsLimit(t *testing.T) {
	rows := make([]*domain.Restaurant, 0, 20)
	for i := int64(1); i <= 20; i++ {
		rows = append(rows, searchRow(i, "R", float64(i)/10, "italian"))
	}
	restaurants := &fakeRestaurantRepo{rows: rows}
	reviews := &fakeReviewRepo{mentions: map[int64][]string{20: {"peanut oil"}}}
	engine := newTestEngine(&fakeAI{}, &fakeVectors{}, restaurants, reviews)

	got, err := engine.Search(context.Background(), "", domain.SearchFilters{}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != defaultSearchLimit {
		t.Fatalf("results = %d, want default limit %d", len(got), defaultSearchLimit)
	}
	if got[0].ID != 20 || len(got[0].ReviewMentions) != 1 {
		t.Fatalf("expected top-rated id 20 with its review mentions, got %+v", got[0])
	}
	if allergen.Normalize(got[0].ReviewMentions[0]) == "" {
		t.Fatal("mentions must stay raw for the guard to normalize")
	}
}
