package pinecone

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

// VectorStore is the review-embedding index. Vectors are keyed by review id
// and carry the owning restaurant id in metadata so queries can be resolved
// back to restaurants.
type VectorStore interface {
	UpsertReviewVectors(ctx context.Context, vectors []Vector) error

	// QueryRestaurantIDs returns restaurant ids ranked by semantic
	// similarity, best match first, deduplicated keeping the first
	// occurrence of each restaurant.
	QueryRestaurantIDs(ctx context.Context, q []float32, topK int) ([]int64, error)
}

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	namespace string
}

func NewVectorStore(log *logger.Logger, pc Client) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	indexName := strings.TrimSpace(os.Getenv("PINECONE_INDEX_NAME"))
	if indexName == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}

	host := strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST"))

	namespace := strings.TrimSpace(os.Getenv("PINECONE_NAMESPACE"))
	if namespace == "" {
		namespace = "reviews"
	}

	// If host missing, bootstrap via describe_index (fine for local/dev; avoid in prod).
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
		namespace: namespace,
	}, nil
}

func (s *vectorStore) UpsertReviewVectors(ctx context.Context, vectors []Vector) error {
	if s == nil || s.pc == nil {
		return nil
	}
	_, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
		Namespace: s.namespace,
		Vectors:   vectors,
	})
	return err
}

func (s *vectorStore) QueryRestaurantIDs(ctx context.Context, q []float32, topK int) ([]int64, error) {
	if s == nil || s.pc == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       s.namespace,
		Vector:          q,
		TopK:            topK,
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(resp.Matches))
	out := make([]int64, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		id, ok := restaurantIDFromMetadata(m.Metadata)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func restaurantIDFromMetadata(meta map[string]any) (int64, bool) {
	v, ok := meta["restaurant_id"]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), t > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}
