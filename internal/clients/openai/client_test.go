package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

func TestStripJSONFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare json untouched",
			in:   `{"intent":"discovery"}`,
			want: `{"intent":"discovery"}`,
		},
		{
			name: "plain fence",
			in:   "```\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "json fence",
			in:   "```json\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "json fence with surrounding whitespace",
			in:   "  ```json\n{\n  \"a\": 1\n}\n```  ",
			want: "{\n  \"a\": 1\n}",
		},
		{
			name: "uppercase language tag",
			in:   "```JSON\n[1,2]\n```",
			want: "[1,2]",
		},
		{
			name: "single line fence",
			in:   "```{\"a\":1}```",
			want: `{"a":1}`,
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripJSONFences(tc.in); got != tc.want {
				t.Fatalf("StripJSONFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func newTestClient(t *testing.T, baseURL string) *client {
	t.Helper()
	log := logger.NewNop()
	return &client{
		log:             log,
		baseURL:         baseURL,
		apiKey:          "test-key",
		model:           "primary-model",
		fallback:        "fallback-model",
		embedModel:      "embed-model",
		httpClient:      &http.Client{},
		timeout:         2 * time.Second,
		fallbackTimeout: 2 * time.Second,
		maxAttempts:     1,
		embedBatchSize:  100,
	}
}

func completionBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestGenerateFallsBackWhenPrimaryFails(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		models = append(models, req.Model)
		if req.Model == "primary-model" {
			http.Error(w, `{"error":"overloaded"}`, http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, completionBody("from the fallback"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "from the fallback" {
		t.Fatalf("text = %q", text)
	}
	want := []string{"primary-model", "fallback-model"}
	if len(models) != 2 || models[0] != want[0] || models[1] != want[1] {
		t.Fatalf("models called = %v, want %v", models, want)
	}
}

func TestGenerateSkipsFallbackWhenPrimarySucceeds(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req.Model)
		fmt.Fprint(w, completionBody("from the primary"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "from the primary" {
		t.Fatalf("text = %q", text)
	}
	if len(models) != 1 || models[0] != "primary-model" {
		t.Fatalf("models called = %v, want just the primary", models)
	}
}

func TestGenerateCombinesErrorsWhenBothModelsFail(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GenerateText(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error when both models fail")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want one per model", calls)
	}
	msg := err.Error()
	if !strings.Contains(msg, "primary-model") || !strings.Contains(msg, "fallback-model") {
		t.Fatalf("error %q should name both models", msg)
	}
}
