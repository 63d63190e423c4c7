package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/savora-ai/savora-backend/internal/clients/openai"
	"github.com/savora-ai/savora-backend/internal/data/repos"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

// preferenceKeys is the full set of keys the profiler may write. Anything
// else the model emits is discarded, which keeps allergy-shaped output from
// ever reaching the preferences blob.
var preferenceKeys = map[string]bool{
	"dietary":          true,
	"vibes":            true,
	"cuisine_affinity": true,
	"cuisine_aversion": true,
	"price_comfort":    true,
}

// PreferenceProfiler learns durable preferences from chat messages in the
// background. It must never break a chat turn: every failure is logged and
// swallowed, and the interaction counter is bumped regardless.
type PreferenceProfiler struct {
	log   *logger.Logger
	ai    openai.Client
	users repos.UserRepo
}

func NewPreferenceProfiler(log *logger.Logger, ai openai.Client, users repos.UserRepo) *PreferenceProfiler {
	return &PreferenceProfiler{
		log:   log.With("service", "PreferenceProfiler"),
		ai:    ai,
		users: users,
	}
}

// Run extracts preferences from one message and merges them into the user's
// profile. It reports whether anything new was stored, so callers can decide
// to rebuild the recommendation cache.
func (p *PreferenceProfiler) Run(ctx context.Context, uid uuid.UUID, message string) bool {
	stored := p.run(ctx, uid, message)
	if !stored {
		if err := p.users.BumpInteraction(ctx, nil, uid); err != nil {
			p.log.Warn("Bumping interaction count failed", "uid", uid, "error", err.Error())
		}
	}
	return stored
}

func (p *PreferenceProfiler) run(ctx context.Context, uid uuid.UUID, message string) bool {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("Profiler panicked", "uid", uid, "panic", rec)
		}
	}()

	if strings.TrimSpace(message) == "" {
		return false
	}

	system, user := buildProfilerPrompt(message)
	raw, err := p.ai.GenerateJSON(ctx, system, user)
	if err != nil {
		p.log.Warn("Profiler extraction failed", "uid", uid, "error", err.Error())
		return false
	}

	var extracted map[string]any
	if err := json.Unmarshal(raw, &extracted); err != nil {
		p.log.Warn("Profiler output was not an object", "uid", uid, "error", err.Error())
		return false
	}

	signals := map[string][]string{}
	for key, val := range extracted {
		if !preferenceKeys[key] {
			continue
		}
		if vals := cleanStringList(val); len(vals) > 0 {
			signals[key] = vals
		}
	}
	if len(signals) == 0 {
		return false
	}

	row, err := p.users.GetByUID(ctx, nil, uid)
	if err != nil || row == nil {
		p.log.Warn("Profiler could not load user", "uid", uid)
		return false
	}

	prefs := map[string]any(row.Preferences)
	if prefs == nil {
		prefs = map[string]any{}
	}
	for key, vals := range signals {
		prefs[key] = unionStrings(existingList(prefs[key]), vals)
	}

	profile := domain.ProfileFromUser(row)
	dietary := unionStrings(profile.DietaryFlags, existingList(prefs["dietary"]))
	vibes := unionStrings(profile.VibeTags, existingList(prefs["vibes"]))
	prices := unionStrings(profile.PreferredPriceTiers, validPriceTiers(existingList(prefs["price_comfort"])))

	if err := p.users.UpdatePreferences(ctx, nil, uid, prefs, dietary, vibes, prices); err != nil {
		p.log.Warn("Storing extracted preferences failed", "uid", uid, "error", err.Error())
		return false
	}

	p.log.Info("Profile updated from chat", "uid", uid, "keys", keysOf(signals))
	return true
}

func cleanStringList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = t
	case string:
		raw = []string{t}
	default:
		return nil
	}

	out := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func existingList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func unionStrings(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := map[string]bool{}
	for _, s := range append(append([]string{}, base...), add...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func validPriceTiers(tiers []string) []string {
	out := make([]string, 0, len(tiers))
	for _, t := range tiers {
		if domain.PriceTierIndex(t) >= 0 {
			out = append(out, t)
		}
	}
	return out
}

func keysOf(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
