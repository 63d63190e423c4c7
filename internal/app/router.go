package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/savora-ai/savora-backend/internal/middleware"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/utils"
)

func wireRouter(log *logger.Logger, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{utils.GetEnv("CORS_ALLOW_ORIGIN", "*", log)},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Service-Token"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", h.Health.Healthz)

	v1 := router.Group("/v1")
	v1.Use(middleware.ServiceToken(log, utils.GetEnv("SERVICE_TOKEN", "", log)))
	{
		v1.POST("/chat", h.Chat.Chat)
		v1.POST("/admin/index-reviews", h.Admin.IndexReviews)

		users := v1.Group("/users/:uid")
		{
			users.PUT("", h.Users.Ensure)
			users.GET("", h.Users.Get)
			users.PATCH("/preferences", h.Users.UpdatePreferences)
			users.PATCH("/allergies", h.Users.ReplaceAllergies)
			users.GET("/interactions", h.Users.ListInteractions)
			users.DELETE("", h.Users.Delete)

			users.GET("/recommendations", h.Recommendations.Feed)
			users.GET("/recommendations/:restaurant_id/expand", h.Recommendations.Expand)
		}
	}

	return router
}
