package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type InteractionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, in *domain.Interaction) error
	ListByUser(ctx context.Context, tx *gorm.DB, uid uuid.UUID, limit, offset int) ([]*domain.Interaction, int64, error)
	DeleteByUser(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return &interactionRepo{db: db, log: baseLog.With("repo", "InteractionRepo")}
}

func (r *interactionRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *interactionRepo) Create(ctx context.Context, tx *gorm.DB, in *domain.Interaction) error {
	return r.handle(tx).WithContext(ctx).Create(in).Error
}

func (r *interactionRepo) ListByUser(ctx context.Context, tx *gorm.DB, uid uuid.UUID, limit, offset int) ([]*domain.Interaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := r.handle(tx).WithContext(ctx).Model(&domain.Interaction{}).Where("uid = ?", uid)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*domain.Interaction
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *interactionRepo) DeleteByUser(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error {
	return r.handle(tx).WithContext(ctx).
		Where("uid = ?", uid).
		Delete(&domain.Interaction{}).Error
}
