package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Review belongs to one restaurant. VectorID points at the review's
// embedding in the vector store; a nil VectorID means the review is not
// searchable by similarity but still participates in structured filtering.
type Review struct {
	ID           int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	RestaurantID int64 `gorm:"not null;index" json:"restaurant_id"`

	ReviewText string  `gorm:"not null" json:"review_text"`
	VectorID   *string `gorm:"size:64;index" json:"vector_id,omitempty"`

	// Allergen keywords found in this review during ingestion; used to
	// upgrade a restaurant's allergen confidence and by the safety guard's
	// mention scan.
	AllergenMentions datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"allergen_mentions"`

	Source       string     `gorm:"size:50;not null;default:'zomato'" json:"source"`
	ReviewDate   *time.Time `json:"review_date,omitempty"`
	ReviewRating *float64   `json:"review_rating,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (Review) TableName() string { return "reviews" }
