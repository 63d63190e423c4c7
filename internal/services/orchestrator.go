package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/clients/openai"
	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/sse"
)

const (
	chatSearchLimit   = 15
	evaluatePoolSize  = 10
	evaluateKeepSize  = 5
	evalReviewsPerRes = 3
)

// Narrow views of the collaborating services, so chat turns can be tested
// against fakes.
type searchEngine interface {
	Search(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.RestaurantResult, error)
}

type preferenceLearner interface {
	Run(ctx context.Context, uid uuid.UUID, message string) bool
}

type feedPrewarmer interface {
	Prewarm(uid uuid.UUID)
}

// QueryOrchestrator drives one chat turn through a fixed pipeline: load
// context, plan, search, evaluate, safety-check, respond, then background
// bookkeeping. Every turn emits ordered thinking events and exactly one
// terminal result event; any unrecoverable failure becomes the generic
// fallback payload instead of an error.
type QueryOrchestrator struct {
	log          *logger.Logger
	ai           openai.Client
	users        repos.UserRepo
	interactions repos.InteractionRepo
	reviews      repos.ReviewRepo
	search       searchEngine
	guard        *AllergyGuard
	profiler     preferenceLearner
	prewarmer    feedPrewarmer
}

func NewQueryOrchestrator(
	log *logger.Logger,
	ai openai.Client,
	users repos.UserRepo,
	interactions repos.InteractionRepo,
	reviews repos.ReviewRepo,
	search searchEngine,
	guard *AllergyGuard,
	profiler preferenceLearner,
	prewarmer feedPrewarmer,
) *QueryOrchestrator {
	return &QueryOrchestrator{
		log:          log.With("service", "QueryOrchestrator"),
		ai:           ai,
		users:        users,
		interactions: interactions,
		reviews:      reviews,
		search:       search,
		guard:        guard,
		profiler:     profiler,
		prewarmer:    prewarmer,
	}
}

// decomposition is the planner's structured reading of the user message.
type decomposition struct {
	Intent            string `json:"intent"`
	StructuredFilters struct {
		CuisineTypes     []string `json:"cuisine_types"`
		PriceTiers       []string `json:"price_tiers"`
		Area             string   `json:"area"`
		MinRating        *float64 `json:"min_rating"`
		ExcludeAllergens []string `json:"exclude_allergens"`
	} `json:"structured_filters"`
	SemanticQueryText     string `json:"semantic_query_text"`
	UIPreference          string `json:"ui_preference"`
	NeedsClarification    bool   `json:"needs_clarification"`
	ClarificationQuestion string `json:"clarification_question"`
}

// HandleChat runs one chat turn and streams its events. The returned channel
// is closed after the terminal result event.
func (o *QueryOrchestrator) HandleChat(ctx context.Context, uid uuid.UUID, message string, history []domain.ChatMessage) <-chan sse.Event {
	events := make(chan sse.Event, 8)
	go func() {
		defer close(events)
		o.run(ctx, uid, message, history, events)
	}()
	return events
}

func (o *QueryOrchestrator) run(ctx context.Context, uid uuid.UUID, message string, history []domain.ChatMessage, events chan<- sse.Event) {
	finished := false
	finish := func(payload domain.UIPayload, background bool) {
		if finished {
			return
		}
		finished = true
		events <- sse.Result(payload)
		if background {
			go o.runBackground(uid, message, payload)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("Chat turn panicked", "uid", uid, "panic", rec)
			finish(domain.FallbackPayload(), false)
		}
	}()

	// Context load.
	events <- sse.Thinking(sse.StepFetchingContext)
	profile := o.loadProfile(ctx, uid)

	// Plan.
	events <- sse.Thinking(sse.StepPlanning)
	plan, err := o.decompose(ctx, profile, history, message)
	if err != nil {
		o.log.Warn("Query decomposition failed", "uid", uid, "error", err.Error())
		finish(domain.FallbackPayload(), false)
		return
	}

	if plan.NeedsClarification {
		q := plan.ClarificationQuestion
		if q == "" {
			q = "Could you tell me a bit more about what you're looking for?"
		}
		finish(domain.UIPayload{
			UIType:             domain.UITypeText,
			Message:            q,
			Restaurants:        []domain.RestaurantResult{},
			FlaggedRestaurants: []domain.RestaurantResult{},
		}, true)
		return
	}

	filters := domain.SearchFilters{
		CuisineTypes:     plan.StructuredFilters.CuisineTypes,
		PriceTiers:       plan.StructuredFilters.PriceTiers,
		Area:             plan.StructuredFilters.Area,
		MinRating:        plan.StructuredFilters.MinRating,
		ExcludeAllergens: withAnaphylactic(plan.StructuredFilters.ExcludeAllergens, profile.Allergies),
	}

	// Search.
	events <- sse.Thinking(sse.StepSearching)
	query := plan.SemanticQueryText
	if query == "" {
		query = message
	}
	candidates, err := o.search.Search(ctx, query, filters, chatSearchLimit)
	if err != nil {
		o.log.Warn("Hybrid search failed", "uid", uid, "error", err.Error())
		finish(domain.FallbackPayload(), false)
		return
	}

	if len(candidates) == 0 {
		finish(domain.UIPayload{
			UIType:             domain.UITypeText,
			Message:            "I couldn't find anything matching that. Want to try a different area, cuisine or budget?",
			Restaurants:        []domain.RestaurantResult{},
			FlaggedRestaurants: []domain.RestaurantResult{},
		}, true)
		return
	}

	// Evaluate.
	events <- sse.Thinking(sse.StepEvaluating)
	top := o.evaluate(ctx, candidates)

	// Safety check.
	events <- sse.Thinking(sse.StepCheckingAllergies)
	guarded := o.guard.Check(top, profile.Allergies)

	payload := domain.UIPayload{
		UIType:             domain.ParseUIType(plan.UIPreference),
		Message:            composeMessage(guarded),
		Restaurants:        guarded.Safe,
		FlaggedRestaurants: guarded.Flagged,
		HasAllergyWarnings: guarded.HasWarnings,
		FollowUpQuestions:  followUps(filters),
	}
	finish(payload, true)
}

func (o *QueryOrchestrator) loadProfile(ctx context.Context, uid uuid.UUID) domain.Profile {
	user, err := o.users.GetByUID(ctx, nil, uid)
	if err != nil {
		o.log.Warn("Loading user failed; continuing with empty profile", "uid", uid, "error", err.Error())
		return domain.ProfileFromUser(nil)
	}
	if user == nil {
		user = &domain.User{UID: uid, Preferences: datatypes.JSONMap{}, Allergies: datatypes.JSONMap{}}
		if err := o.users.Upsert(ctx, nil, user); err != nil {
			o.log.Warn("Creating user row failed", "uid", uid, "error", err.Error())
		}
	}
	return domain.ProfileFromUser(user)
}

func (o *QueryOrchestrator) decompose(ctx context.Context, profile domain.Profile, history []domain.ChatMessage, message string) (*decomposition, error) {
	system, user := buildDecompositionPrompt(profile, history, message)
	raw, err := o.ai.GenerateJSON(ctx, system, user)
	if err != nil {
		return nil, err
	}
	var plan decomposition
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode decomposition: %w", err)
	}
	return &plan, nil
}

// evaluate scores up to ten candidates with one model call and keeps the
// five best by composite. A failed evaluation keeps the search order and
// attaches no scores.
func (o *QueryOrchestrator) evaluate(ctx context.Context, candidates []domain.RestaurantResult) []domain.RestaurantResult {
	pool := candidates
	if len(pool) > evaluatePoolSize {
		pool = pool[:evaluatePoolSize]
	}

	reviewsByID := map[int64][]string{}
	for _, r := range pool {
		texts, err := o.reviews.RecentTexts(ctx, nil, r.ID, evalReviewsPerRes)
		if err != nil {
			o.log.Warn("Loading reviews for evaluation failed", "restaurant_id", r.ID, "error", err.Error())
			continue
		}
		reviewsByID[r.ID] = texts
	}

	scores := o.evaluationScores(ctx, pool, reviewsByID)

	type ranked struct {
		result    domain.RestaurantResult
		composite float64
	}

	out := make([]ranked, 0, len(pool))
	for _, r := range pool {
		if sc, ok := scores[r.ID]; ok {
			s := sc
			r.Scores = &s
			out = append(out, ranked{result: r, composite: s.Composite()})
		} else {
			out = append(out, ranked{result: r})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].composite > out[j].composite
	})

	keep := len(out)
	if keep > evaluateKeepSize {
		keep = evaluateKeepSize
	}
	results := make([]domain.RestaurantResult, 0, keep)
	for _, r := range out[:keep] {
		results = append(results, r.result)
	}
	return results
}

func (o *QueryOrchestrator) evaluationScores(ctx context.Context, pool []domain.RestaurantResult, reviewsByID map[int64][]string) map[int64]domain.RadarScores {
	out := map[int64]domain.RadarScores{}
	system, user := buildEvaluationPrompt(pool, reviewsByID)
	raw, err := o.ai.GenerateJSON(ctx, system, user)
	if err != nil {
		o.log.Warn("Evaluation call failed; keeping search order", "error", err.Error())
		return out
	}

	var parsed map[string]domain.RadarScores
	if err := json.Unmarshal(raw, &parsed); err != nil {
		o.log.Warn("Evaluation output unreadable; keeping search order", "error", err.Error())
		return out
	}
	for idStr, sc := range parsed {
		id, pErr := strconv.ParseInt(idStr, 10, 64)
		if pErr != nil {
			continue
		}
		out[id] = sc
	}
	return out
}

// runBackground persists the interaction and lets the profiler learn from
// the message. When new preferences were stored, tomorrow's feed assumptions
// are stale, so the feed cache is rebuilt.
func (o *QueryOrchestrator) runBackground(uid uuid.UUID, message string, payload domain.UIPayload) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("Chat background work panicked", "uid", uid, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	o.saveInteraction(ctx, uid, message, payload)

	if o.profiler != nil && o.profiler.Run(ctx, uid, message) {
		if o.prewarmer != nil {
			o.prewarmer.Prewarm(uid)
		}
	}
}

func (o *QueryOrchestrator) saveInteraction(ctx context.Context, uid uuid.UUID, message string, payload domain.UIPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		o.log.Warn("Encoding interaction payload failed", "uid", uid, "error", err.Error())
		raw = []byte("{}")
	}

	ids := make([]int64, 0, len(payload.Restaurants))
	for _, r := range payload.Restaurants {
		ids = append(ids, r.ID)
	}
	flagged := make([]string, 0)
	seen := map[string]bool{}
	for _, r := range append(payload.Restaurants, payload.FlaggedRestaurants...) {
		for _, w := range r.AllergyWarnings {
			if !seen[w.Allergen] {
				seen[w.Allergen] = true
				flagged = append(flagged, w.Allergen)
			}
		}
	}

	row := &domain.Interaction{
		UID:                  uid,
		UserQuery:            message,
		AgentResponse:        datatypes.JSON(raw),
		UIType:               string(payload.UIType),
		RestaurantIDs:        datatypes.NewJSONSlice(ids),
		AllergyWarningsShown: payload.HasAllergyWarnings,
		AllergensFlagged:     datatypes.NewJSONSlice(flagged),
	}
	if err := o.interactions.Create(ctx, nil, row); err != nil {
		o.log.Warn("Saving interaction failed", "uid", uid, "error", err.Error())
	}
}

// withAnaphylactic adds the user's anaphylactic allergens to an exclusion
// list, normalized and deduplicated. This runs before every search and is
// not overridable by the planner.
func withAnaphylactic(exclude []string, allergies domain.AllergyProfile) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(exclude)+2)
	for _, a := range exclude {
		canon := allergen.Normalize(a)
		if canon != "" && !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	for _, a := range allergies.Anaphylactic() {
		canon := allergen.Normalize(a)
		if canon != "" && !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out
}

func composeMessage(guarded GuardResult) string {
	n := len(guarded.Safe)
	switch {
	case n == 0 && len(guarded.Flagged) > 0:
		return "Everything I found raised a serious allergy concern for you, so I've set those aside below. Want me to widen the search?"
	case n == 1:
		msg := "I found one spot that fits what you're after."
		if guarded.HasWarnings {
			msg += " Check the allergy notes before you go."
		}
		return msg
	default:
		msg := fmt.Sprintf("Here are %d places that fit what you're after.", n)
		if len(guarded.Flagged) > 0 {
			msg += fmt.Sprintf(" I set aside %d with serious allergy concerns.", len(guarded.Flagged))
		} else if guarded.HasWarnings {
			msg += " A few carry allergy notes worth reading."
		}
		return msg
	}
}

// followUps suggests next refinements based on which filters the user has
// not used yet.
func followUps(filters domain.SearchFilters) []string {
	var out []string
	if filters.Area == "" {
		out = append(out, "Want me to narrow this to a specific area?")
	}
	if len(filters.PriceTiers) == 0 {
		out = append(out, "Should I filter by budget?")
	}
	if filters.MinRating == nil {
		out = append(out, "Only show highly rated places?")
	}
	if len(out) > 2 {
		out = out[:2]
	}
	return out
}
