package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/savora-ai/savora-backend/internal/clients/pinecone"
	"github.com/savora-ai/savora-backend/internal/domain"
)

// ---- model ----

type fakeAI struct {
	embedFn        func(inputs []string) ([][]float32, error)
	embedQueryFn   func(query string) ([]float32, error)
	generateJSONFn func(system, user string) (json.RawMessage, error)
	generateTextFn func(system, user string) (string, error)
	jsonCalls      []string
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{0.1}
	}
	return out, nil
}

func (f *fakeAI) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if f.embedQueryFn != nil {
		return f.embedQueryFn(query)
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	if f.generateTextFn != nil {
		return f.generateTextFn(system, user)
	}
	return "ok", nil
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	f.jsonCalls = append(f.jsonCalls, user)
	if f.generateJSONFn != nil {
		return f.generateJSONFn(system, user)
	}
	return json.RawMessage(`{}`), nil
}

// ---- vector store ----

type fakeVectors struct {
	queryFn   func(q []float32, topK int) ([]int64, error)
	upserted  []pinecone.Vector
	upsertErr error
}

func (f *fakeVectors) UpsertReviewVectors(ctx context.Context, vectors []pinecone.Vector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func (f *fakeVectors) QueryRestaurantIDs(ctx context.Context, q []float32, topK int) ([]int64, error) {
	if f.queryFn != nil {
		return f.queryFn(q, topK)
	}
	return nil, nil
}

// ---- repos ----

type fakeUserRepo struct {
	users       map[uuid.UUID]*domain.User
	bumped      int
	prefsCalls  int
	lastPrefs   map[string]any
	lastDietary []string
	lastVibes   []string
	lastPrices  []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*domain.User{}}
}

func (f *fakeUserRepo) GetByUID(ctx context.Context, tx *gorm.DB, uid uuid.UUID) (*domain.User, error) {
	return f.users[uid], nil
}

func (f *fakeUserRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.User) error {
	f.users[row.UID] = row
	return nil
}

func (f *fakeUserRepo) UpdatePreferences(ctx context.Context, tx *gorm.DB, uid uuid.UUID, prefs map[string]any, dietary, vibes, prices []string) error {
	f.prefsCalls++
	f.lastPrefs = prefs
	f.lastDietary = dietary
	f.lastVibes = vibes
	f.lastPrices = prices
	return nil
}

func (f *fakeUserRepo) ReplaceAllergies(ctx context.Context, tx *gorm.DB, uid uuid.UUID, allergies domain.AllergyProfile, flags []string) error {
	return nil
}

func (f *fakeUserRepo) BumpInteraction(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error {
	f.bumped++
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error {
	delete(f.users, uid)
	return nil
}

type fakeRestaurantRepo struct {
	rows        []*domain.Restaurant
	lastFilters domain.SearchFilters
	lastExclude []string
}

func (f *fakeRestaurantRepo) ListForSearch(ctx context.Context, tx *gorm.DB, filters domain.SearchFilters) ([]*domain.Restaurant, error) {
	f.lastFilters = filters
	out := make([]*domain.Restaurant, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeRestaurantRepo) TopRatedActive(ctx context.Context, tx *gorm.DB, exclude []string, limit int) ([]*domain.Restaurant, error) {
	f.lastExclude = exclude
	out := make([]*domain.Restaurant, len(f.rows))
	copy(out, f.rows)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRestaurantRepo) GetActiveByID(ctx context.Context, tx *gorm.DB, id int64) (*domain.Restaurant, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

type fakeReviewRepo struct {
	texts     map[int64][]string
	mentions  map[int64][]string
	unindexed []*domain.Review
	vectorIDs map[int64]string
}

func (f *fakeReviewRepo) RecentTexts(ctx context.Context, tx *gorm.DB, restaurantID int64, limit int) ([]string, error) {
	return f.texts[restaurantID], nil
}

func (f *fakeReviewRepo) AllergenMentions(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64][]string, error) {
	if f.mentions == nil {
		return map[int64][]string{}, nil
	}
	return f.mentions, nil
}

func (f *fakeReviewRepo) ListUnindexed(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Review, error) {
	if limit < len(f.unindexed) {
		return f.unindexed[:limit], nil
	}
	return f.unindexed, nil
}

func (f *fakeReviewRepo) SetVectorID(ctx context.Context, tx *gorm.DB, reviewID int64, vectorID string) error {
	if f.vectorIDs == nil {
		f.vectorIDs = make(map[int64]string)
	}
	f.vectorIDs[reviewID] = vectorID
	return nil
}

type fakeInteractionRepo struct {
	created []*domain.Interaction
}

func (f *fakeInteractionRepo) Create(ctx context.Context, tx *gorm.DB, in *domain.Interaction) error {
	f.created = append(f.created, in)
	return nil
}

func (f *fakeInteractionRepo) ListByUser(ctx context.Context, tx *gorm.DB, uid uuid.UUID, limit, offset int) ([]*domain.Interaction, int64, error) {
	return f.created, int64(len(f.created)), nil
}

func (f *fakeInteractionRepo) DeleteByUser(ctx context.Context, tx *gorm.DB, uid uuid.UUID) error {
	f.created = nil
	return nil
}

// ---- cache ----

type fakeCache struct {
	data map[string][]byte
	dels []string
	sets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok := f.data[key]
	return raw, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	f.sets++
	f.data[key] = val
	return nil
}

func (f *fakeCache) Del(ctx context.Context, key string) error {
	f.dels = append(f.dels, key)
	delete(f.data, key)
	return nil
}

func (f *fakeCache) Close() error { return nil }

// ---- pipeline collaborators ----

type fakeSearch struct {
	results     []domain.RestaurantResult
	err         error
	lastFilters domain.SearchFilters
	lastQuery   string
}

func (f *fakeSearch) Search(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.RestaurantResult, error) {
	f.lastQuery = query
	f.lastFilters = filters
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeProfiler struct {
	stored bool
	calls  int
}

func (f *fakeProfiler) Run(ctx context.Context, uid uuid.UUID, message string) bool {
	f.calls++
	return f.stored
}

type fakePrewarmer struct {
	calls int
}

func (f *fakePrewarmer) Prewarm(uid uuid.UUID) { f.calls++ }

var errBoom = errors.New("boom")
