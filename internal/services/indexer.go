package services

import (
	"context"
	"fmt"

	"github.com/savora-ai/savora-backend/internal/clients/openai"
	"github.com/savora-ai/savora-backend/internal/clients/pinecone"
	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

const indexBatchSize = 100

// ReviewIndexer embeds review texts that have no vector yet and upserts them
// into the vector store. Ingestion writes the rows; this closes the loop so
// semantic search can see them.
type ReviewIndexer struct {
	log     *logger.Logger
	reviews repos.ReviewRepo
	ai      openai.Client
	vectors pinecone.VectorStore
}

func NewReviewIndexer(
	baseLog *logger.Logger,
	reviews repos.ReviewRepo,
	ai openai.Client,
	vectors pinecone.VectorStore,
) *ReviewIndexer {
	return &ReviewIndexer{
		log:     baseLog.With("service", "ReviewIndexer"),
		reviews: reviews,
		ai:      ai,
		vectors: vectors,
	}
}

// IndexPending processes up to one batch of unindexed reviews and reports how
// many vectors were written. Callers loop until it returns 0.
func (s *ReviewIndexer) IndexPending(ctx context.Context) (int, error) {
	rows, err := s.reviews.ListUnindexed(ctx, nil, indexBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unindexed reviews: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	texts := make([]string, len(rows))
	for i, rv := range rows {
		texts[i] = rv.ReviewText
	}
	embeddings, err := s.ai.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed reviews: %w", err)
	}

	vectors := make([]pinecone.Vector, 0, len(rows))
	vectorIDs := make(map[int64]string, len(rows))
	for i, rv := range rows {
		if i >= len(embeddings) || embeddings[i] == nil {
			continue
		}
		id := fmt.Sprintf("review-%d", rv.ID)
		vectors = append(vectors, pinecone.Vector{
			ID:     id,
			Values: embeddings[i],
			Metadata: map[string]any{
				"restaurant_id": rv.RestaurantID,
			},
		})
		vectorIDs[rv.ID] = id
	}
	if len(vectors) == 0 {
		s.log.Warn("No embeddings produced for batch", "batch_size", len(rows))
		return 0, nil
	}

	if err := s.vectors.UpsertReviewVectors(ctx, vectors); err != nil {
		return 0, fmt.Errorf("upsert review vectors: %w", err)
	}

	written := 0
	for _, rv := range rows {
		vid, ok := vectorIDs[rv.ID]
		if !ok {
			continue
		}
		if err := s.reviews.SetVectorID(ctx, nil, rv.ID, vid); err != nil {
			s.log.Error("Failed to record vector id", "review_id", rv.ID, "error", err)
			continue
		}
		written++
	}
	s.log.Info("Indexed review batch", "embedded", len(vectors), "recorded", written)
	return written, nil
}
