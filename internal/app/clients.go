package app

import (
	"os"
	"strings"
	"time"

	"github.com/savora-ai/savora-backend/internal/clients/openai"
	"github.com/savora-ai/savora-backend/internal/clients/pinecone"
	redisclients "github.com/savora-ai/savora-backend/internal/clients/redis"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/utils"
)

type Clients struct {
	AI      openai.Client
	Vectors pinecone.VectorStore
	Cache   redisclients.Cache
}

func wireClients(log *logger.Logger) (Clients, error) {
	var out Clients

	ai, err := openai.NewClient(log)
	if err != nil {
		return out, err
	}

	pc, err := pinecone.New(log, pinecone.Config{
		APIKey:     strings.TrimSpace(os.Getenv("PINECONE_API_KEY")),
		APIVersion: strings.TrimSpace(os.Getenv("PINECONE_API_VERSION")),
		Timeout:    time.Duration(utils.GetEnvAsInt("PINECONE_TIMEOUT_SECONDS", 30, log)) * time.Second,
	})
	if err != nil {
		return out, err
	}
	vectors, err := pinecone.NewVectorStore(log, pc)
	if err != nil {
		return out, err
	}

	cache, err := redisclients.NewCache(log)
	if err != nil {
		return out, err
	}

	out.AI = ai
	out.Vectors = vectors
	out.Cache = cache
	return out, nil
}
