package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/services"
)

// One request processes at most this many batches so a huge backlog cannot
// pin a connection forever.
const maxIndexBatchesPerCall = 20

type AdminHandler struct {
	log     *logger.Logger
	indexer *services.ReviewIndexer
}

func NewAdminHandler(baseLog *logger.Logger, indexer *services.ReviewIndexer) *AdminHandler {
	return &AdminHandler{
		log:     baseLog.With("handler", "AdminHandler"),
		indexer: indexer,
	}
}

// IndexReviews embeds and upserts reviews that have no vector yet.
func (h *AdminHandler) IndexReviews(c *gin.Context) {
	total := 0
	for i := 0; i < maxIndexBatchesPerCall; i++ {
		n, err := h.indexer.IndexPending(c.Request.Context())
		if err != nil {
			h.log.Error("Review indexing failed", "indexed_so_far", total, "error", err)
			RespondError(c, http.StatusServiceUnavailable, "index_failed", err)
			return
		}
		if n == 0 {
			break
		}
		total += n
	}
	RespondOK(c, gin.H{"indexed": total})
}
