package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type RestaurantRepo interface {
	// ListForSearch applies the scalar predicates of a hybrid search (price
	// tiers, area substring, minimum rating, active flag) plus the hard
	// allergen exclusion at the query level. Cuisine intersection is left to
	// the search engine, which also owns ranking.
	ListForSearch(ctx context.Context, tx *gorm.DB, filters domain.SearchFilters) ([]*domain.Restaurant, error)

	// TopRatedActive returns up to limit active restaurants ordered by
	// rating descending, with the same hard allergen exclusion.
	TopRatedActive(ctx context.Context, tx *gorm.DB, excludeAllergens []string, limit int) ([]*domain.Restaurant, error)

	GetActiveByID(ctx context.Context, tx *gorm.DB, id int64) (*domain.Restaurant, error)
}

type restaurantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRestaurantRepo(db *gorm.DB, baseLog *logger.Logger) RestaurantRepo {
	return &restaurantRepo{db: db, log: baseLog.With("repo", "RestaurantRepo")}
}

func (r *restaurantRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// excludeAllergenScope removes any restaurant whose known_allergens contains
// one of the excluded allergens. jsonb containment keeps this on the index.
func excludeAllergenScope(q *gorm.DB, exclude []string) (*gorm.DB, error) {
	for _, a := range exclude {
		if a == "" {
			continue
		}
		one, err := json.Marshal([]string{a})
		if err != nil {
			return nil, fmt.Errorf("marshal allergen %q: %w", a, err)
		}
		q = q.Where("NOT (known_allergens @> ?)", string(one))
	}
	return q, nil
}

func (r *restaurantRepo) ListForSearch(ctx context.Context, tx *gorm.DB, filters domain.SearchFilters) ([]*domain.Restaurant, error) {
	q := r.handle(tx).WithContext(ctx).Model(&domain.Restaurant{}).
		Where("is_active = ?", true)

	if len(filters.PriceTiers) > 0 {
		var tiers []string
		for _, t := range filters.PriceTiers {
			if domain.PriceTierIndex(t) >= 0 {
				tiers = append(tiers, t)
			}
		}
		if len(tiers) > 0 {
			q = q.Where("price_tier IN ?", tiers)
		}
	}
	if filters.Area != "" {
		q = q.Where("area ILIKE ?", "%"+filters.Area+"%")
	}
	if filters.MinRating != nil {
		q = q.Where("rating >= ?", *filters.MinRating)
	}

	q, err := excludeAllergenScope(q, filters.ExcludeAllergens)
	if err != nil {
		return nil, err
	}

	var out []*domain.Restaurant
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *restaurantRepo) TopRatedActive(ctx context.Context, tx *gorm.DB, excludeAllergens []string, limit int) ([]*domain.Restaurant, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.handle(tx).WithContext(ctx).Model(&domain.Restaurant{}).
		Where("is_active = ?", true)

	q, err := excludeAllergenScope(q, excludeAllergens)
	if err != nil {
		return nil, err
	}

	var out []*domain.Restaurant
	if err := q.Order("rating DESC NULLS LAST").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *restaurantRepo) GetActiveByID(ctx context.Context, tx *gorm.DB, id int64) (*domain.Restaurant, error) {
	if id <= 0 {
		return nil, nil
	}
	var out []*domain.Restaurant
	if err := r.handle(tx).WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}
