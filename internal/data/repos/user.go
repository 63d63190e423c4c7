package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type UserRepo interface {
	GetByUID(ctx context.Context, tx *gorm.DB, uid uuid.UUID) (*domain.User, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *domain.User) error

	// UpdatePreferences rewrites the preferences blob and its denormalized
	// arrays. It never touches allergies or allergy_flags.
	UpdatePreferences(ctx context.Context, tx *gorm.DB, uid uuid.UUID, prefs map[string]any, dietaryFlags, vibeTags, priceTiers []string) error

	// ReplaceAllergies fully replaces the allergy state and its flat flags.
	ReplaceAllergies(ctx context.Context, tx *gorm.DB, uid uuid.UUID, allergies domain.AllergyProfile, flags []string) error

	BumpInteraction(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error
	Delete(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userRepo) GetByUID(ctx context.Context, tx *gorm.DB, uid uuid.UUID) (*domain.User, error) {
	if uid == uuid.Nil {
		return nil, nil
	}
	var out []*domain.User
	if err := r.handle(tx).WithContext(ctx).Where("uid = ?", uid).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *userRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.User) error {
	if row == nil || row.UID == uuid.Nil {
		return fmt.Errorf("user row with uid required")
	}
	existing, err := r.GetByUID(ctx, tx, row.UID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.handle(tx).WithContext(ctx).Create(row).Error
	}
	return r.handle(tx).WithContext(ctx).Model(&domain.User{}).
		Where("uid = ?", row.UID).
		Updates(map[string]interface{}{
			"preferences":           row.Preferences,
			"allergies":             row.Allergies,
			"allergy_flags":         row.AllergyFlags,
			"dietary_flags":         row.DietaryFlags,
			"vibe_tags":             row.VibeTags,
			"preferred_price_tiers": row.PreferredPriceTiers,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *userRepo) UpdatePreferences(ctx context.Context, tx *gorm.DB, uid uuid.UUID, prefs map[string]any, dietaryFlags, vibeTags, priceTiers []string) error {
	if uid == uuid.Nil {
		return fmt.Errorf("uid required")
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	now := time.Now().UTC()
	return r.handle(tx).WithContext(ctx).Model(&domain.User{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"preferences":           datatypes.JSON(raw),
			"dietary_flags":         datatypes.NewJSONSlice(dietaryFlags),
			"vibe_tags":             datatypes.NewJSONSlice(vibeTags),
			"preferred_price_tiers": datatypes.NewJSONSlice(priceTiers),
			"interaction_count":     gorm.Expr("interaction_count + 1"),
			"last_active_at":        now,
			"updated_at":            now,
		}).Error
}

func (r *userRepo) ReplaceAllergies(ctx context.Context, tx *gorm.DB, uid uuid.UUID, allergies domain.AllergyProfile, flags []string) error {
	if uid == uuid.Nil {
		return fmt.Errorf("uid required")
	}
	raw, err := json.Marshal(allergies)
	if err != nil {
		return fmt.Errorf("marshal allergies: %w", err)
	}
	return r.handle(tx).WithContext(ctx).Model(&domain.User{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"allergies":     datatypes.JSON(raw),
			"allergy_flags": datatypes.NewJSONSlice(flags),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *userRepo) BumpInteraction(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error {
	if uid == uuid.Nil {
		return fmt.Errorf("uid required")
	}
	now := time.Now().UTC()
	return r.handle(tx).WithContext(ctx).Model(&domain.User{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"interaction_count": gorm.Expr("interaction_count + 1"),
			"last_active_at":    now,
			"updated_at":        now,
		}).Error
}

func (r *userRepo) Delete(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error {
	if uid == uuid.Nil {
		return fmt.Errorf("uid required")
	}
	return r.handle(tx).WithContext(ctx).Where("uid = ?", uid).Delete(&domain.User{}).Error
}
