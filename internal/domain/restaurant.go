package domain

import (
	"time"

	"gorm.io/datatypes"

	"github.com/savora-ai/savora-backend/internal/allergen"
)

// Restaurant rows are populated by an external ingestion process and only
// read here.
type Restaurant struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	URL     string `json:"url,omitempty"`
	Address string `json:"address,omitempty"`
	Area    string `json:"area,omitempty"`
	City    string `gorm:"not null;default:'Bangalore'" json:"city,omitempty"`

	CuisineTypes datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"cuisine_types"`
	PriceTier    string                      `gorm:"size:10" json:"price_tier,omitempty"` // "$".."$$$$"
	CostForTwo   int                         `json:"cost_for_two,omitempty"`

	Rating *float64 `json:"rating,omitempty"`
	Votes  int      `gorm:"not null;default:0" json:"votes"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	KnownAllergens     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"known_allergens"`
	AllergenConfidence allergen.Confidence         `gorm:"size:10;not null;default:'low'" json:"allergen_confidence"`

	Meta datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"meta"`

	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Restaurant) TableName() string { return "restaurants" }

// PriceTiers orders the ordinal price tiers cheapest first.
var PriceTiers = []string{"$", "$$", "$$$", "$$$$"}

// PriceTierIndex returns the ordinal position of a tier, or -1 for anything
// unrecognized.
func PriceTierIndex(tier string) int {
	for i, t := range PriceTiers {
		if t == tier {
			return i
		}
	}
	return -1
}
