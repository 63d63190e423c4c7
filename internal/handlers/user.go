package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/services"
)

type UserHandler struct {
	log *logger.Logger
	svc *services.UserService
}

func NewUserHandler(log *logger.Logger, svc *services.UserService) *UserHandler {
	return &UserHandler{log: log.With("handler", "UserHandler"), svc: svc}
}

func (h *UserHandler) uid(c *gin.Context) (uuid.UUID, bool) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_uid", err)
		return uuid.Nil, false
	}
	return uid, true
}

// Ensure serves PUT /v1/users/:uid, creating the row on first contact.
func (h *UserHandler) Ensure(c *gin.Context) {
	uid, ok := h.uid(c)
	if !ok {
		return
	}
	user, err := h.svc.Ensure(c.Request.Context(), uid)
	if err != nil {
		h.log.Error("Ensuring user failed", "uid", uid, "error", err.Error())
		RespondError(c, http.StatusServiceUnavailable, "user_ensure_failed", errors.New("could not create user"))
		return
	}
	RespondOK(c, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	uid, ok := h.uid(c)
	if !ok {
		return
	}
	user, err := h.svc.Get(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusServiceUnavailable, "user_get_failed", errors.New("could not load user"))
		return
	}
	RespondOK(c, user)
}

// UpdatePreferences serves PATCH /v1/users/:uid/preferences with a partial
// preference document. Allergy keys in the body are ignored; allergies have
// their own endpoint.
func (h *UserHandler) UpdatePreferences(c *gin.Context) {
	uid, ok := h.uid(c)
	if !ok {
		return
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	user, err := h.svc.UpdatePreferences(c.Request.Context(), uid, body)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusServiceUnavailable, "preferences_update_failed", errors.New("could not update preferences"))
		return
	}
	RespondOK(c, user)
}

// ReplaceAllergies serves PATCH /v1/users/:uid/allergies. The body replaces
// the whole allergy profile; there are no partial allergy edits.
func (h *UserHandler) ReplaceAllergies(c *gin.Context) {
	uid, ok := h.uid(c)
	if !ok {
		return
	}
	var body domain.AllergyProfile
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	user, err := h.svc.ReplaceAllergies(c.Request.Context(), uid, body)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusServiceUnavailable, "allergies_update_failed", errors.New("could not update allergies"))
		return
	}
	RespondOK(c, user)
}

func (h *UserHandler) ListInteractions(c *gin.Context) {
	uid, ok := h.uid(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, total, err := h.svc.ListInteractions(c.Request.Context(), uid, limit, offset)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusServiceUnavailable, "interactions_list_failed", errors.New("could not list interactions"))
		return
	}
	RespondOK(c, gin.H{"interactions": rows, "total": total})
}

// Delete serves DELETE /v1/users/:uid and removes the user together with
// their interaction history.
func (h *UserHandler) Delete(c *gin.Context) {
	uid, ok := h.uid(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), uid); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusServiceUnavailable, "user_delete_failed", errors.New("could not delete user"))
		return
	}
	c.Status(http.StatusNoContent)
}
