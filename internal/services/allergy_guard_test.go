package services

import (
	"testing"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

func testGuard() *AllergyGuard {
	return NewAllergyGuard(logger.NewNop())
}

func candidate(id int64, name string, opts ...func(*domain.RestaurantResult)) domain.RestaurantResult {
	r := domain.RestaurantResult{
		ID: id, Name: name,
		AllergySafe:     true,
		AllergyWarnings: []domain.AllergyWarning{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func withKnownAllergens(conf allergen.Confidence, names ...string) func(*domain.RestaurantResult) {
	return func(r *domain.RestaurantResult) {
		r.KnownAllergens = names
		r.AllergenConfidence = conf
	}
}

func withCuisines(names ...string) func(*domain.RestaurantResult) {
	return func(r *domain.RestaurantResult) { r.CuisineTypes = names }
}

func withMentions(names ...string) func(*domain.RestaurantResult) {
	return func(r *domain.RestaurantResult) { r.ReviewMentions = names }
}

func TestGuardFlagsOnlyHighConfidenceAnaphylaxis(t *testing.T) {
	profile := domain.AllergyProfile{
		Confirmed: []string{"peanuts"},
		Severity:  map[string]string{"peanuts": "anaphylactic"},
	}

	cases := []struct {
		name        string
		restaurant  domain.RestaurantResult
		wantFlagged bool
		wantWarn    bool
	}{
		{
			name:        "high confidence tag flags",
			restaurant:  candidate(1, "Nut House", withKnownAllergens(allergen.ConfidenceHigh, "peanuts")),
			wantFlagged: true,
			wantWarn:    true,
		},
		{
			name:        "review mention flags",
			restaurant:  candidate(2, "Wok This Way", withMentions("groundnut")),
			wantFlagged: true,
			wantWarn:    true,
		},
		{
			name:        "cuisine heuristic warns but does not flag",
			restaurant:  candidate(3, "Dragon Palace", withCuisines("chinese")),
			wantFlagged: false,
			wantWarn:    true,
		},
		{
			name:        "low confidence tag warns but does not flag",
			restaurant:  candidate(4, "Mystery Diner", withKnownAllergens(allergen.ConfidenceLow, "peanuts")),
			wantFlagged: false,
			wantWarn:    true,
		},
		{
			name:        "clean restaurant stays safe",
			restaurant:  candidate(5, "Salad Bar", withCuisines("continental")),
			wantFlagged: false,
			wantWarn:    false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := testGuard().Check([]domain.RestaurantResult{tc.restaurant}, profile)
			gotFlagged := len(res.Flagged) == 1
			if gotFlagged != tc.wantFlagged {
				t.Fatalf("flagged = %v, want %v", gotFlagged, tc.wantFlagged)
			}
			var r domain.RestaurantResult
			if gotFlagged {
				r = res.Flagged[0]
			} else {
				r = res.Safe[0]
			}
			if (len(r.AllergyWarnings) > 0) != tc.wantWarn {
				t.Fatalf("warnings = %d, want warnings: %v", len(r.AllergyWarnings), tc.wantWarn)
			}
			if r.AllergySafe == gotFlagged {
				t.Fatalf("AllergySafe = %v inconsistent with flagged = %v", r.AllergySafe, gotFlagged)
			}
		})
	}
}

func TestGuardConfidenceNoteOnNonHighMatches(t *testing.T) {
	profile := domain.AllergyProfile{
		Confirmed: []string{"dairy"},
		Severity:  map[string]string{"dairy": "moderate"},
	}

	res := testGuard().Check([]domain.RestaurantResult{
		candidate(1, "Creamline", withCuisines("north indian")),
	}, profile)

	if len(res.Safe) != 1 || len(res.Safe[0].AllergyWarnings) != 1 {
		t.Fatalf("expected one safe restaurant with one warning, got %+v", res)
	}
	w := res.Safe[0].AllergyWarnings[0]
	if w.Confidence != allergen.ConfidenceMedium {
		t.Fatalf("confidence = %q, want medium", w.Confidence)
	}
	if w.ConfidenceNote == "" {
		t.Fatal("expected a confidence note on a heuristic match")
	}
	if w.Level != "caution" {
		t.Fatalf("level = %q, want caution for moderate severity", w.Level)
	}
}

func TestGuardNoNoteOnHighConfidence(t *testing.T) {
	profile := domain.AllergyProfile{
		Confirmed: []string{"dairy"},
	}

	res := testGuard().Check([]domain.RestaurantResult{
		candidate(1, "Creamline", withKnownAllergens(allergen.ConfidenceHigh, "milk")),
	}, profile)

	if len(res.Safe) != 1 {
		t.Fatalf("expected one safe restaurant, got %+v", res)
	}
	w := res.Safe[0].AllergyWarnings[0]
	if w.ConfidenceNote != "" {
		t.Fatalf("unexpected confidence note on high-confidence match: %q", w.ConfidenceNote)
	}
	if w.Severity != allergen.SeveritySevere {
		t.Fatalf("severity = %q, want severe default for confirmed allergens", w.Severity)
	}
}

func TestGuardSafeListOrder(t *testing.T) {
	profile := domain.AllergyProfile{
		Confirmed:    []string{"dairy"},
		Intolerances: []string{"gluten"},
		Severity:     map[string]string{"dairy": "severe"},
	}

	severe := candidate(1, "Cheese Works", withKnownAllergens(allergen.ConfidenceMedium, "dairy"))
	mild := candidate(2, "Bread Box", withKnownAllergens(allergen.ConfidenceMedium, "gluten"))
	clean := candidate(3, "Green Bowl")

	res := testGuard().Check([]domain.RestaurantResult{severe, mild, clean}, profile)
	if len(res.Safe) != 3 {
		t.Fatalf("safe = %d, want 3", len(res.Safe))
	}

	wantOrder := []int64{3, 2, 1} // no warnings, then intolerance, then severe
	for i, want := range wantOrder {
		if res.Safe[i].ID != want {
			t.Fatalf("safe[%d].ID = %d, want %d (order %v)", i, res.Safe[i].ID, want, wantOrder)
		}
	}
}

func TestGuardWarningsSortedMostSevereFirst(t *testing.T) {
	profile := domain.AllergyProfile{
		Confirmed:    []string{"peanuts", "dairy"},
		Intolerances: []string{"gluten"},
		Severity:     map[string]string{"peanuts": "anaphylactic", "dairy": "moderate"},
	}

	r := candidate(1, "Everything Café",
		withKnownAllergens(allergen.ConfidenceMedium, "gluten", "dairy", "peanuts"))

	res := testGuard().Check([]domain.RestaurantResult{r}, profile)
	if len(res.Safe) != 1 {
		t.Fatalf("medium-confidence anaphylaxis must not flag, got %+v", res)
	}
	warns := res.Safe[0].AllergyWarnings
	if len(warns) != 3 {
		t.Fatalf("warnings = %d, want 3", len(warns))
	}
	for i := 1; i < len(warns); i++ {
		if warns[i-1].Severity.Rank() > warns[i].Severity.Rank() {
			t.Fatalf("warnings out of order: %q before %q", warns[i-1].Severity, warns[i].Severity)
		}
	}
	if warns[0].Allergen != "peanuts" {
		t.Fatalf("most severe warning = %q, want peanuts", warns[0].Allergen)
	}
}

func TestGuardEmptyProfilePassesEverything(t *testing.T) {
	res := testGuard().Check([]domain.RestaurantResult{
		candidate(1, "Nut House", withKnownAllergens(allergen.ConfidenceHigh, "peanuts")),
	}, domain.AllergyProfile{})

	if len(res.Flagged) != 0 || len(res.Safe) != 1 {
		t.Fatalf("expected everything safe with empty profile, got %+v", res)
	}
	if res.HasWarnings {
		t.Fatal("no warnings expected with empty profile")
	}
}
