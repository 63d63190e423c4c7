package services

import (
	"sort"
	"strings"

	"github.com/savora-ai/savora-backend/internal/allergen"
	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

// AllergyGuard is the mandatory safety pass over every restaurant list that
// reaches a user. It is deterministic and does not call any model.
type AllergyGuard struct {
	log *logger.Logger
}

func NewAllergyGuard(log *logger.Logger) *AllergyGuard {
	return &AllergyGuard{log: log.With("service", "AllergyGuard")}
}

// GuardResult partitions candidates into the safe list (rendered normally)
// and the flagged list (rendered collapsed behind a danger notice).
type GuardResult struct {
	Safe        []domain.RestaurantResult
	Flagged     []domain.RestaurantResult
	HasWarnings bool
}

// Check annotates every candidate with its allergy warnings and partitions
// the list. A restaurant is flagged only when it matches an anaphylactic
// allergen at high confidence; everything else stays visible with warnings
// attached. If classifying a single candidate fails it is flagged rather
// than dropped, so a bug can never hide a risk.
func (g *AllergyGuard) Check(candidates []domain.RestaurantResult, profile domain.AllergyProfile) GuardResult {
	userSev := normalizedSeverities(profile)

	var res GuardResult
	res.Safe = make([]domain.RestaurantResult, 0, len(candidates))
	res.Flagged = make([]domain.RestaurantResult, 0)

	for i := range candidates {
		r := candidates[i]
		warnings, flagged, ok := g.classify(r, userSev)
		if !ok {
			r.AllergySafe = false
			r.AllergyWarnings = warnings
			res.Flagged = append(res.Flagged, r)
			res.HasWarnings = true
			continue
		}

		r.AllergyWarnings = warnings
		if len(warnings) > 0 {
			res.HasWarnings = true
		}
		if flagged {
			r.AllergySafe = false
			res.Flagged = append(res.Flagged, r)
		} else {
			r.AllergySafe = true
			res.Safe = append(res.Safe, r)
		}
	}

	sortSafeList(res.Safe)
	return res
}

// classify returns the warnings for one restaurant, whether it must be
// flagged, and whether classification completed.
func (g *AllergyGuard) classify(r domain.RestaurantResult, userSev map[string]allergen.Severity) (warnings []domain.AllergyWarning, flagged bool, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			g.log.Error("Allergy classification failed; flagging restaurant",
				"restaurant_id", r.ID,
				"panic", rec,
			)
			warnings = []domain.AllergyWarning{conservativeWarning()}
			flagged = true
			ok = false
		}
	}()

	if len(userSev) == 0 {
		return nil, false, true
	}

	// Highest confidence wins when an allergen is detected through more
	// than one source.
	matched := map[string]allergen.Confidence{}
	record := func(name string, conf allergen.Confidence) {
		canon := allergen.Normalize(name)
		if _, cares := userSev[canon]; !cares {
			return
		}
		if prev, seen := matched[canon]; !seen || confidenceRank(conf) < confidenceRank(prev) {
			matched[canon] = conf
		}
	}

	for _, a := range r.KnownAllergens {
		record(a, r.AllergenConfidence)
	}
	for _, mention := range r.ReviewMentions {
		record(mention, allergen.ConfidenceHigh)
	}
	for _, cuisine := range r.CuisineTypes {
		for _, risk := range allergen.CuisineRisks(cuisine) {
			record(risk, allergen.ConfidenceMedium)
		}
	}

	for name, conf := range matched {
		sev := userSev[name]
		tmpl := allergen.Template(sev)
		w := domain.AllergyWarning{
			Allergen:   name,
			Severity:   sev,
			Level:      tmpl.Level,
			Icon:       tmpl.Icon,
			Title:      tmpl.Title,
			Message:    renderWarning(tmpl.Message, name),
			Confidence: conf,
		}
		if conf != allergen.ConfidenceHigh {
			w.ConfidenceNote = allergen.ConfidenceNote
		}
		warnings = append(warnings, w)

		if sev == allergen.SeverityAnaphylactic && conf == allergen.ConfidenceHigh {
			flagged = true
		}
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].Severity.Rank() != warnings[j].Severity.Rank() {
			return warnings[i].Severity.Rank() < warnings[j].Severity.Rank()
		}
		return warnings[i].Allergen < warnings[j].Allergen
	})
	return warnings, flagged, true
}

func normalizedSeverities(profile domain.AllergyProfile) map[string]allergen.Severity {
	out := map[string]allergen.Severity{}
	for name, raw := range profile.AllergySeverities() {
		canon := allergen.Normalize(name)
		sev := allergen.ParseSeverity(raw)
		if prev, seen := out[canon]; !seen || sev.Rank() < prev.Rank() {
			out[canon] = sev
		}
	}
	return out
}

// sortSafeList orders the visible list so restaurants with no warnings come
// first, then the rest from least to most dangerous worst-case severity.
func sortSafeList(safe []domain.RestaurantResult) {
	sort.SliceStable(safe, func(i, j int) bool {
		wi, wj := worstRank(safe[i]), worstRank(safe[j])
		return wi > wj
	})
}

// worstRank is the most dangerous severity rank among a restaurant's
// warnings. Restaurants with no warnings rank past intolerance.
func worstRank(r domain.RestaurantResult) int {
	best := allergen.SeverityIntolerance.Rank() + 1
	for _, w := range r.AllergyWarnings {
		if rank := w.Severity.Rank(); rank < best {
			best = rank
		}
	}
	return best
}

func confidenceRank(c allergen.Confidence) int {
	switch c {
	case allergen.ConfidenceHigh:
		return 0
	case allergen.ConfidenceMedium:
		return 1
	default:
		return 2
	}
}

func renderWarning(template, name string) string {
	display := strings.ReplaceAll(name, "_", " ")
	return strings.Replace(template, "%s", display, 1)
}

func conservativeWarning() domain.AllergyWarning {
	tmpl := allergen.Template(allergen.SeverityAnaphylactic)
	return domain.AllergyWarning{
		Allergen:       "unknown",
		Severity:       allergen.SeverityAnaphylactic,
		Level:          tmpl.Level,
		Icon:           tmpl.Icon,
		Title:          tmpl.Title,
		Message:        "We could not verify this restaurant against your allergy profile. Please confirm with the restaurant directly.",
		Confidence:     allergen.ConfidenceLow,
		ConfidenceNote: allergen.ConfidenceNote,
	}
}
