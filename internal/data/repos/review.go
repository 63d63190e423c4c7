package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type ReviewRepo interface {
	// RecentTexts returns the newest review texts for one restaurant,
	// most recent first.
	RecentTexts(ctx context.Context, tx *gorm.DB, restaurantID int64, limit int) ([]string, error)

	// AllergenMentions collects the allergen_mentions arrays for a set of
	// restaurants, keyed by restaurant id. Restaurants with no mentions are
	// absent from the map.
	AllergenMentions(ctx context.Context, tx *gorm.DB, restaurantIDs []int64) (map[int64][]string, error)

	// ListUnindexed returns reviews that have text but no vector yet,
	// oldest first.
	ListUnindexed(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Review, error)

	SetVectorID(ctx context.Context, tx *gorm.DB, reviewID int64, vectorID string) error
}

type reviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRepo {
	return &reviewRepo{db: db, log: baseLog.With("repo", "ReviewRepo")}
}

func (r *reviewRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *reviewRepo) RecentTexts(ctx context.Context, tx *gorm.DB, restaurantID int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []*domain.Review
	if err := r.handle(tx).WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("review_date DESC NULLS LAST, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(rows))
	for _, rv := range rows {
		if rv.ReviewText != "" {
			texts = append(texts, rv.ReviewText)
		}
	}
	return texts, nil
}

func (r *reviewRepo) AllergenMentions(ctx context.Context, tx *gorm.DB, restaurantIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(restaurantIDs))
	if len(restaurantIDs) == 0 {
		return out, nil
	}
	var rows []*domain.Review
	if err := r.handle(tx).WithContext(ctx).
		Select("restaurant_id", "allergen_mentions").
		Where("restaurant_id IN ?", restaurantIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, rv := range rows {
		if len(rv.AllergenMentions) == 0 {
			continue
		}
		out[rv.RestaurantID] = append(out[rv.RestaurantID], rv.AllergenMentions...)
	}
	return out, nil
}

func (r *reviewRepo) ListUnindexed(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Review, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*domain.Review
	if err := r.handle(tx).WithContext(ctx).
		Where("vector_id IS NULL AND review_text <> ''").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reviewRepo) SetVectorID(ctx context.Context, tx *gorm.DB, reviewID int64, vectorID string) error {
	return r.handle(tx).WithContext(ctx).
		Model(&domain.Review{}).
		Where("id = ?", reviewID).
		Update("vector_id", vectorID).Error
}
