package app

import (
	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/handlers"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

type Handlers struct {
	Health          *handlers.HealthcheckHandler
	Chat            *handlers.ChatHandler
	Recommendations *handlers.RecommendationHandler
	Users           *handlers.UserHandler
	Admin           *handlers.AdminHandler
}

func wireHandlers(log *logger.Logger, theDB *gorm.DB, s Services) Handlers {
	return Handlers{
		Health:          handlers.NewHealthcheckHandler(theDB),
		Chat:            handlers.NewChatHandler(log, s.Orchestrator),
		Recommendations: handlers.NewRecommendationHandler(log, s.Recommendations),
		Users:           handlers.NewUserHandler(log, s.Users),
		Admin:           handlers.NewAdminHandler(log, s.Indexer),
	}
}
