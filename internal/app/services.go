package app

import (
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/services"
)

type Services struct {
	Search          *services.HybridSearchEngine
	Guard           *services.AllergyGuard
	Scorer          *services.FitScorer
	Profiler        *services.PreferenceProfiler
	Recommendations *services.RecommendationService
	Orchestrator    *services.QueryOrchestrator
	Users           *services.UserService
	Indexer         *services.ReviewIndexer
}

func wireServices(log *logger.Logger, clients Clients, r Repos) Services {
	guard := services.NewAllergyGuard(log)
	scorer := services.NewFitScorer()
	search := services.NewHybridSearchEngine(log, clients.AI, clients.Vectors, r.Restaurants, r.Reviews)
	profiler := services.NewPreferenceProfiler(log, clients.AI, r.Users)
	recommendations := services.NewRecommendationService(
		log, clients.AI, clients.Cache, r.Users, r.Restaurants, r.Reviews, scorer, guard,
	)
	orchestrator := services.NewQueryOrchestrator(
		log, clients.AI, r.Users, r.Interactions, r.Reviews,
		search, guard, profiler, recommendations,
	)
	users := services.NewUserService(log, r.Users, r.Interactions)
	indexer := services.NewReviewIndexer(log, r.Reviews, clients.AI, clients.Vectors)

	return Services{
		Search:          search,
		Guard:           guard,
		Scorer:          scorer,
		Profiler:        profiler,
		Recommendations: recommendations,
		Orchestrator:    orchestrator,
		Users:           users,
		Indexer:         indexer,
	}
}
