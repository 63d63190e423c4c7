package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

// UserService owns profile reads and writes. Preference writes and allergy
// writes go through separate paths on purpose: preferences are soft inferred
// data, allergies are safety-critical and only ever replaced wholesale.
type UserService struct {
	log          *logger.Logger
	users        repos.UserRepo
	interactions repos.InteractionRepo
}

func NewUserService(log *logger.Logger, users repos.UserRepo, interactions repos.InteractionRepo) *UserService {
	return &UserService{
		log:          log.With("service", "UserService"),
		users:        users,
		interactions: interactions,
	}
}

func (s *UserService) Get(ctx context.Context, uid uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByUID(ctx, nil, uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Ensure creates the user row if it does not exist yet and returns it.
func (s *UserService) Ensure(ctx context.Context, uid uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByUID(ctx, nil, uid)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user = &domain.User{
		UID:         uid,
		Preferences: datatypes.JSONMap{},
		Allergies:   datatypes.JSONMap{},
	}
	if err := s.users.Upsert(ctx, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdatePreferences merges the given keys into the stored preferences blob
// and rebuilds the denormalized arrays. Allergy-shaped keys are dropped
// here exactly as the background profiler drops them.
func (s *UserService) UpdatePreferences(ctx context.Context, uid uuid.UUID, updates map[string]any) (*domain.User, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	prefs := map[string]any(user.Preferences)
	if prefs == nil {
		prefs = map[string]any{}
	}
	for key, val := range updates {
		if !preferenceKeys[key] {
			s.log.Warn("Dropping non-preference key from update", "uid", uid, "key", key)
			continue
		}
		if vals := cleanStringList(val); len(vals) > 0 {
			prefs[key] = vals
		} else {
			delete(prefs, key)
		}
	}

	dietary := existingList(prefs["dietary"])
	vibes := existingList(prefs["vibes"])
	prices := validPriceTiers(existingList(prefs["price_comfort"]))

	if err := s.users.UpdatePreferences(ctx, nil, uid, prefs, dietary, vibes, prices); err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

// ReplaceAllergies fully replaces the allergy profile. Names are normalized
// to canonical allergens and severities validated before anything is stored.
func (s *UserService) ReplaceAllergies(ctx context.Context, uid uuid.UUID, in domain.AllergyProfile) (*domain.User, error) {
	if _, err := s.Get(ctx, uid); err != nil {
		return nil, err
	}

	normalized := domain.AllergyProfile{
		Confirmed:    normalizeAllergenList(in.Confirmed),
		Intolerances: normalizeAllergenList(in.Intolerances),
		Severity:     map[string]string{},
	}
	for name, sev := range in.Severity {
		canon := allergen.Normalize(name)
		if canon == "" {
			continue
		}
		normalized.Severity[canon] = string(allergen.ParseSeverity(sev))
	}

	flags := unionStrings(normalized.Confirmed, normalized.Intolerances)
	if err := s.users.ReplaceAllergies(ctx, nil, uid, normalized, flags); err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

func (s *UserService) ListInteractions(ctx context.Context, uid uuid.UUID, limit, offset int) ([]*domain.Interaction, int64, error) {
	if _, err := s.Get(ctx, uid); err != nil {
		return nil, 0, err
	}
	return s.interactions.ListByUser(ctx, nil, uid, limit, offset)
}

// Delete removes the user and every interaction row tied to them.
func (s *UserService) Delete(ctx context.Context, uid uuid.UUID) error {
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	if err := s.interactions.DeleteByUser(ctx, nil, uid); err != nil {
		return err
	}
	return s.users.Delete(ctx, nil, uid)
}

func normalizeAllergenList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, raw := range in {
		canon := allergen.Normalize(raw)
		if canon == "" || seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
	}
	return out
}
