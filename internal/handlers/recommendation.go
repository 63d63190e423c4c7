package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/services"
)

type RecommendationHandler struct {
	log *logger.Logger
	svc *services.RecommendationService
}

func NewRecommendationHandler(log *logger.Logger, svc *services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{log: log.With("handler", "RecommendationHandler"), svc: svc}
}

// Feed serves GET /v1/users/:uid/recommendations.
func (h *RecommendationHandler) Feed(c *gin.Context) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_uid", err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
			return
		}
	}
	forceRefresh := c.Query("refresh") == "true"

	payload, err := h.svc.Get(c.Request.Context(), uid, limit, forceRefresh)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		h.log.Error("Building feed failed", "uid", uid, "error", err.Error())
		RespondError(c, http.StatusServiceUnavailable, "feed_failed", errors.New("could not build recommendations"))
		return
	}
	RespondOK(c, payload)
}

// Expand serves GET /v1/users/:uid/recommendations/:restaurant_id/expand.
func (h *RecommendationHandler) Expand(c *gin.Context) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_uid", err)
		return
	}
	restaurantID, err := strconv.ParseInt(c.Param("restaurant_id"), 10, 64)
	if err != nil || restaurantID <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_restaurant_id", errors.New("restaurant_id must be a positive integer"))
		return
	}

	resp, err := h.svc.Expand(c.Request.Context(), uid, restaurantID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			RespondError(c, http.StatusNotFound, "user_not_found", err)
		case errors.Is(err, services.ErrRestaurantNotFound):
			RespondError(c, http.StatusNotFound, "restaurant_not_found", err)
		default:
			h.log.Error("Expanding detail failed", "uid", uid, "restaurant_id", restaurantID, "error", err.Error())
			RespondError(c, http.StatusServiceUnavailable, "expand_failed", errors.New("could not expand restaurant detail"))
		}
		return
	}
	RespondOK(c, resp)
}
