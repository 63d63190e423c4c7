package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

func seededUser(repo *fakeUserRepo) uuid.UUID {
	uid := uuid.New()
	repo.users[uid] = &domain.User{
		UID: uid,
		Preferences: datatypes.JSONMap{
			"cuisine_affinity": []any{"italian"},
		},
		Allergies: datatypes.JSONMap{},
		VibeTags:  datatypes.NewJSONSlice([]string{"rooftop"}),
	}
	return uid
}

func TestProfilerMergesNewSignals(t *testing.T) {
	repo := newFakeUserRepo()
	uid := seededUser(repo)
	ai := &fakeAI{generateJSONFn: func(system, user string) (json.RawMessage, error) {
		return json.RawMessage(`{"cuisine_affinity":["japanese"],"vibes":["quiet"],"price_comfort":["$$","fancy"]}`), nil
	}}

	p := NewPreferenceProfiler(logger.NewNop(), ai, repo)
	if stored := p.Run(context.Background(), uid, "somewhere quiet, maybe japanese"); !stored {
		t.Fatal("expected signals to be stored")
	}
	if repo.prefsCalls != 1 {
		t.Fatalf("UpdatePreferences calls = %d, want 1", repo.prefsCalls)
	}

	affinity := repo.lastPrefs["cuisine_affinity"].([]string)
	if len(affinity) != 2 || affinity[0] != "italian" || affinity[1] != "japanese" {
		t.Fatalf("cuisine_affinity = %v, want union keeping existing first", affinity)
	}
	if len(repo.lastVibes) != 2 {
		t.Fatalf("vibe flags = %v, want rooftop+quiet", repo.lastVibes)
	}
	if len(repo.lastPrices) != 1 || repo.lastPrices[0] != "$$" {
		t.Fatalf("prices = %v, want only the valid tier", repo.lastPrices)
	}
	if repo.bumped != 0 {
		t.Fatal("successful preference write already bumps activity; no extra bump expected")
	}
}

func TestProfilerDiscardsUnknownKeys(t *testing.T) {
	repo := newFakeUserRepo()
	uid := seededUser(repo)
	ai := &fakeAI{generateJSONFn: func(system, user string) (json.RawMessage, error) {
		return json.RawMessage(`{"allergies":["peanuts"],"confirmed":["shellfish"],"admin":true}`), nil
	}}

	p := NewPreferenceProfiler(logger.NewNop(), ai, repo)
	if stored := p.Run(context.Background(), uid, "I'm allergic to peanuts"); stored {
		t.Fatal("allergy-shaped output must never be stored as a preference")
	}
	if repo.prefsCalls != 0 {
		t.Fatal("UpdatePreferences must not be called for discarded keys")
	}
	if repo.bumped != 1 {
		t.Fatalf("bumped = %d, want interaction still counted", repo.bumped)
	}
}

func TestProfilerSurvivesModelFailure(t *testing.T) {
	repo := newFakeUserRepo()
	uid := seededUser(repo)
	ai := &fakeAI{generateJSONFn: func(system, user string) (json.RawMessage, error) {
		return nil, errBoom
	}}

	p := NewPreferenceProfiler(logger.NewNop(), ai, repo)
	if stored := p.Run(context.Background(), uid, "anything"); stored {
		t.Fatal("extraction failure must not report stored signals")
	}
	if repo.bumped != 1 {
		t.Fatalf("bumped = %d, want 1 even on failure", repo.bumped)
	}
}

func TestProfilerEmptySignal(t *testing.T) {
	repo := newFakeUserRepo()
	uid := seededUser(repo)

	p := NewPreferenceProfiler(logger.NewNop(), &fakeAI{}, repo)
	if stored := p.Run(context.Background(), uid, "thanks!"); stored {
		t.Fatal("empty extraction must not report stored signals")
	}
	if repo.prefsCalls != 0 || repo.bumped != 1 {
		t.Fatalf("prefsCalls = %d bumped = %d, want 0 and 1", repo.prefsCalls, repo.bumped)
	}
}
