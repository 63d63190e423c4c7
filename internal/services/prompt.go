package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/savora-ai/savora-backend/internal/domain"
)

// Prompt builders for every model call in the pipeline. Each returns a
// system prompt; callers supply the user content separately where it varies.

const decompositionSystem = `You are the query planner for a dining recommendation assistant in Bangalore.
Given the user's message, their profile and the recent conversation, produce a single JSON object:
{
  "intent": "discovery" | "comparison" | "detail" | "chitchat",
  "structured_filters": {
    "cuisine_types": [string],
    "price_tiers": [string],   // subset of ["$","$$","$$$","$$$$"]
    "area": string,
    "min_rating": number | null,
    "exclude_allergens": [string]  // allergens or ingredients the user asked to avoid in this message
  },
  "semantic_query_text": string,  // what to search reviews for, in plain language
  "ui_preference": "restaurant_list" | "radar_comparison" | "map_view" | "text",
  "needs_clarification": boolean,
  "clarification_question": string
}
Rules:
- Fold the user's standing preferences into the filters unless the message overrides them.
- Set needs_clarification only when the request is too vague to search at all, and then write one short friendly question.
- Never mention allergies in clarification questions; allergy handling is automatic.
- Respond with the JSON object only.`

func buildDecompositionPrompt(profile domain.Profile, history []domain.ChatMessage, message string) (string, string) {
	var b strings.Builder
	b.WriteString(userContextBlock(profile))
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User message: %s", message)
	return decompositionSystem, b.String()
}

const evaluationSystem = `You are a restaurant evaluator. Score each restaurant on five dimensions from 0 to 10 using its recent reviews:
ambiance, quietness, food_quality, plant_based, value.
Respond with a JSON object mapping restaurant id (as a string) to its scores, e.g.
{"12": {"ambiance": 7, "quietness": 5, "food_quality": 8, "plant_based": 4, "value": 6}}
Score every restaurant you are given. Respond with the JSON object only.`

func buildEvaluationPrompt(candidates []domain.RestaurantResult, reviewsByID map[int64][]string) (string, string) {
	var b strings.Builder
	for _, r := range candidates {
		fmt.Fprintf(&b, "Restaurant %d: %s (%s)\n", r.ID, r.Name, strings.Join(r.CuisineTypes, ", "))
		for _, text := range reviewsByID[r.ID] {
			fmt.Fprintf(&b, "- %s\n", text)
		}
		b.WriteString("\n")
	}
	return evaluationSystem, b.String()
}

const profilerSystem = `You extract durable dining preferences from a single user message.
Respond with a JSON object containing only the keys you are confident about, from this set:
- "dietary": [string]            // e.g. ["vegan"]
- "vibes": [string]              // e.g. ["rooftop", "quiet"]
- "cuisine_affinity": [string]
- "cuisine_aversion": [string]
- "price_comfort": [string]      // subset of ["$","$$","$$$","$$$$"]
Only include preferences the user actually expressed, not one-off search filters.
If the message carries no durable signal, respond with {}.
Respond with the JSON object only.`

func buildProfilerPrompt(message string) (string, string) {
	return profilerSystem, message
}

const consolidatedReviewSystem = `You write one-line summaries of restaurants from their reviews.
For each restaurant, write a single sentence of at most 160 characters capturing what diners consistently say.
Respond with a JSON object mapping restaurant id (as a string) to its sentence. Respond with the JSON object only.`

func buildConsolidatedReviewPrompt(items map[int64][]string, names map[int64]string) (string, string) {
	var b strings.Builder
	for id, texts := range items {
		fmt.Fprintf(&b, "Restaurant %d: %s\n", id, names[id])
		for _, t := range texts {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}
	return consolidatedReviewSystem, b.String()
}

const expandedDetailSystem = `You prepare an in-depth restaurant profile from its reviews for one specific user.
Respond with a JSON object:
{
  "review_summary": string,            // 2-3 sentences
  "highlights": [{"icon": string, "text": string}],   // up to 5
  "crowd_profile": string,             // who goes there
  "best_for": [string],                // up to 4 occasions
  "avoid_if": [string],                // up to 3 caveats
  "radar_scores": {"ambiance": n, "quietness": n, "food_quality": n, "plant_based": n, "value": n},  // 0-10
  "why_fit_paragraph": string          // 2-3 sentences addressed to this user
}
Be concrete and grounded in the reviews. Respond with the JSON object only.`

func buildExpandedDetailPrompt(profile domain.Profile, r domain.RestaurantResult, reviews []string) (string, string) {
	var b strings.Builder
	b.WriteString(userContextBlock(profile))
	fmt.Fprintf(&b, "Restaurant: %s (%s), price %s, area %s\n",
		r.Name, strings.Join(r.CuisineTypes, ", "), r.PriceTier, r.Area)
	b.WriteString("Reviews:\n")
	for _, t := range reviews {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	return expandedDetailSystem, b.String()
}

// userContextBlock renders the profile facts relevant to prompting. Allergies
// are listed so the model can phrase responses sensibly, but enforcement is
// never delegated to the model.
func userContextBlock(profile domain.Profile) string {
	var b strings.Builder
	b.WriteString("User profile:\n")
	if len(profile.DietaryFlags) > 0 {
		fmt.Fprintf(&b, "- Dietary: %s\n", strings.Join(profile.DietaryFlags, ", "))
	}
	if len(profile.CuisineAffinity) > 0 {
		fmt.Fprintf(&b, "- Likes: %s\n", strings.Join(profile.CuisineAffinity, ", "))
	}
	if len(profile.CuisineAversion) > 0 {
		fmt.Fprintf(&b, "- Avoids: %s\n", strings.Join(profile.CuisineAversion, ", "))
	}
	if len(profile.VibeTags) > 0 {
		fmt.Fprintf(&b, "- Preferred vibes: %s\n", strings.Join(profile.VibeTags, ", "))
	}
	if len(profile.PreferredPriceTiers) > 0 {
		fmt.Fprintf(&b, "- Price comfort: %s\n", strings.Join(profile.PreferredPriceTiers, ", "))
	}
	if sev := profile.Allergies.AllergySeverities(); len(sev) > 0 {
		names := make([]string, 0, len(sev))
		for name := range sev {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "- Allergies (handled automatically, never suggest unsafe options): %s\n",
			strings.Join(names, ", "))
		if ana := profile.Allergies.Anaphylactic(); len(ana) > 0 {
			fmt.Fprintf(&b, "- Anaphylactic allergens, always excluded: %s\n", strings.Join(ana, ", "))
		}
	}
	b.WriteString("\n")
	return b.String()
}
