package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User holds the personalization profile for one end user. The UID is issued
// by the account backend and never generated here.
//
// Preferences is soft, inferred data; Allergies is safety-critical and only
// ever written by the allergy replace endpoint. No preference code path may
// touch Allergies or AllergyFlags.
type User struct {
	UID uuid.UUID `gorm:"type:uuid;primaryKey;column:uid" json:"uid"`

	Preferences datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"preferences"`
	Allergies   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"allergies"`

	// Denormalized flat arrays for fast filtering and prompt assembly.
	AllergyFlags        datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"allergy_flags"`
	DietaryFlags        datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"dietary_flags"`
	VibeTags            datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"vibe_tags"`
	PreferredPriceTiers datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"preferred_price_tiers"`

	InteractionCount int        `gorm:"not null;default:0" json:"interaction_count"`
	LastActiveAt     *time.Time `json:"last_active_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// AllergyProfile is the typed shape of the Allergies JSON column.
type AllergyProfile struct {
	Confirmed    []string          `json:"confirmed"`
	Intolerances []string          `json:"intolerances"`
	Severity     map[string]string `json:"severity"`
}

// Profile is the flattened user profile handed to the scorer, the guard and
// the prompt builders.
type Profile struct {
	UID                 uuid.UUID      `json:"uid"`
	Preferences         map[string]any `json:"preferences"`
	Allergies           AllergyProfile `json:"allergies"`
	AllergyFlags        []string       `json:"allergy_flags"`
	DietaryFlags        []string       `json:"dietary_flags"`
	VibeTags            []string       `json:"vibe_tags"`
	PreferredPriceTiers []string       `json:"preferred_price_tiers"`
	CuisineAffinity     []string       `json:"cuisine_affinity"`
	CuisineAversion     []string       `json:"cuisine_aversion"`
}

// ProfileFromUser flattens a stored user row into the shape consumed by the
// scorer, the guard and the prompt builders. A nil user yields an empty
// profile so first-time callers still get generic results.
func ProfileFromUser(u *User) Profile {
	if u == nil {
		return Profile{Preferences: map[string]any{}}
	}

	prefs := map[string]any(u.Preferences)
	if prefs == nil {
		prefs = map[string]any{}
	}

	return Profile{
		UID:                 u.UID,
		Preferences:         prefs,
		Allergies:           parseAllergyProfile(u.Allergies),
		AllergyFlags:        []string(u.AllergyFlags),
		DietaryFlags:        []string(u.DietaryFlags),
		VibeTags:            []string(u.VibeTags),
		PreferredPriceTiers: []string(u.PreferredPriceTiers),
		CuisineAffinity:     stringList(prefs["cuisine_affinity"]),
		CuisineAversion:     stringList(prefs["cuisine_aversion"]),
	}
}

func parseAllergyProfile(m map[string]any) AllergyProfile {
	out := AllergyProfile{
		Confirmed:    stringList(m["confirmed"]),
		Intolerances: stringList(m["intolerances"]),
		Severity:     map[string]string{},
	}
	if sev, ok := m["severity"].(map[string]any); ok {
		for k, v := range sev {
			if s, ok := v.(string); ok {
				out.Severity[k] = s
			}
		}
	}
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AllergySeverities returns every allergen the user flagged, mapped to its
// severity. Confirmed allergens with no recorded severity default to severe;
// intolerances default to intolerance.
func (p AllergyProfile) AllergySeverities() map[string]string {
	out := make(map[string]string, len(p.Confirmed)+len(p.Intolerances))
	for _, a := range p.Confirmed {
		sev, ok := p.Severity[a]
		if !ok {
			sev = "severe"
		}
		out[a] = sev
	}
	for _, a := range p.Intolerances {
		if _, exists := out[a]; !exists {
			out[a] = "intolerance"
		}
	}
	return out
}

// Anaphylactic lists the confirmed allergens recorded at anaphylactic
// severity. These are hard-excluded at the search layer on every query.
func (p AllergyProfile) Anaphylactic() []string {
	var out []string
	for _, a := range p.Confirmed {
		if p.Severity[a] == "anaphylactic" {
			out = append(out, a)
		}
	}
	return out
}
