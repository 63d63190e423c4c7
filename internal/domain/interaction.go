package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Interaction is the append-only audit record of one chat turn, including
// which allergy warnings were shown. Rows are deleted only by full account
// deletion.
type Interaction struct {
	ID  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UID uuid.UUID `gorm:"type:uuid;not null;index;column:uid" json:"uid"`

	UserQuery     string         `gorm:"not null" json:"user_query"`
	AgentResponse datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"agent_response"`

	UIType        string                     `json:"ui_type,omitempty"`
	RestaurantIDs datatypes.JSONSlice[int64] `gorm:"type:jsonb" json:"restaurant_ids"`

	AllergyWarningsShown bool                        `gorm:"not null;default:false" json:"allergy_warnings_shown"`
	AllergensFlagged     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"allergens_flagged"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Interaction) TableName() string { return "interactions" }
