package app

import (
	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type Repos struct {
	Users        repos.UserRepo
	Restaurants  repos.RestaurantRepo
	Reviews      repos.ReviewRepo
	Interactions repos.InteractionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Users:        repos.NewUserRepo(db, log),
		Restaurants:  repos.NewRestaurantRepo(db, log),
		Reviews:      repos.NewReviewRepo(db, log),
		Interactions: repos.NewInteractionRepo(db, log),
	}
}
