package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/savora-ai/savora-backend/internal/pkg/ctxutil"
	"github.com/savora-ai/savora-backend/internal/pkg/httpx"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

// Client is the OpenAI API client used by the rest of the backend.
//
// Generation calls try the primary model first and fall over to the fallback
// model when the primary fails or times out. Each model has its own request
// timeout so a slow primary cannot eat the whole budget.
type Client interface {
	// Embed returns one vector per input, batched under the hood. A batch
	// that fails after retries yields nil vectors for its inputs instead of
	// failing the whole call.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// GenerateText returns plain text for a system+user prompt pair.
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// GenerateJSON returns the model output parsed as a JSON document.
	// Markdown code fences around the payload are stripped before parsing.
	GenerateJSON(ctx context.Context, system string, user string) (json.RawMessage, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	fallback   string
	embedModel string
	httpClient *http.Client

	timeout         time.Duration
	fallbackTimeout time.Duration
	maxAttempts     int
	embedBatchSize  int
	embedBatchPause time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o"
	}
	fallback := strings.TrimSpace(os.Getenv("OPENAI_FALLBACK_MODEL"))
	if fallback == "" {
		fallback = "gpt-4o-mini"
	}

	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := envInt("OPENAI_TIMEOUT_SECONDS", 30)
	fallbackTimeoutSec := envInt("OPENAI_FALLBACK_TIMEOUT_SECONDS", 20)
	maxAttempts := envInt("OPENAI_MAX_ATTEMPTS", 2)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &client{
		log:             log.With("service", "OpenAIClient"),
		baseURL:         baseURL,
		apiKey:          apiKey,
		model:           model,
		fallback:        fallback,
		embedModel:      embed,
		httpClient:      &http.Client{},
		timeout:         time.Duration(timeoutSec) * time.Second,
		fallbackTimeout: time.Duration(fallbackTimeoutSec) * time.Second,
		maxAttempts:     maxAttempts,
		embedBatchSize:  100,
		embedBatchPause: 500 * time.Millisecond,
	}, nil
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs one request with retries under a single timeout budget.
func (c *client) do(ctx context.Context, method, path string, body any, out any, timeout time.Duration) error {
	reqCtx := ctxutil.Default(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, timeout)
		defer cancel()
	}

	backoff := 1 * time.Second

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if reqCtx.Err() != nil {
			return reqCtx.Err()
		}

		resp, raw, err := c.doOnce(reqCtx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxAttempts {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-time.After(sleepFor):
		case <-reqCtx.Done():
			return reqCtx.Err()
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	for start := 0; start < len(inputs); start += c.embedBatchSize {
		end := start + c.embedBatchSize
		if end > len(inputs) {
			end = len(inputs)
		}

		vecs, err := c.embedBatch(ctx, inputs[start:end])
		if err != nil {
			c.log.Warn("Embedding batch failed",
				"batch_start", start,
				"batch_size", end-start,
				"error", err.Error(),
			)
			// Leave the batch's slots nil and keep going.
		} else {
			copy(out[start:end], vecs)
		}

		if end < len(inputs) {
			select {
			case <-time.After(c.embedBatchPause):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
	}

	return out, nil
}

func (c *client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := c.embedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty vector for query")
	}
	return vecs[0], nil
}

func (c *client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{Model: c.embedModel, Input: clean}

	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp, c.timeout); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}

	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("openai embeddings missing index %d: requested=%d returned=%d model=%s",
				i, len(clean), len(resp.Data), c.embedModel)
		}
	}
	return out, nil
}

// -------------------- Chat completions --------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) complete(ctx context.Context, model string, system, user string, timeout time.Duration) (string, error) {
	req := chatCompletionsRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var resp chatCompletionsResponse
	if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp, timeout); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	choice := resp.Choices[0].Message
	if strings.TrimSpace(choice.Refusal) != "" {
		return "", fmt.Errorf("model refused: %s", choice.Refusal)
	}
	if strings.TrimSpace(choice.Content) == "" {
		return "", fmt.Errorf("empty completion content")
	}
	return choice.Content, nil
}

// generate tries the primary model, then the fallback model with its own
// timeout when the primary fails for any reason.
func (c *client) generate(ctx context.Context, system, user string) (string, error) {
	text, err := c.complete(ctx, c.model, system, user, c.timeout)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	c.log.Warn("Primary model failed, trying fallback",
		"primary", c.model,
		"fallback", c.fallback,
		"error", err.Error(),
	)

	text, fbErr := c.complete(ctx, c.fallback, system, user, c.fallbackTimeout)
	if fbErr != nil {
		return "", fmt.Errorf("primary %s: %v; fallback %s: %w", c.model, err, c.fallback, fbErr)
	}
	return text, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.generate(ctx, system, user)
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string) (json.RawMessage, error) {
	text, err := c.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}

	payload := StripJSONFences(text)
	if payload == "" {
		return nil, errors.New("empty model output")
	}
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("model output is not valid JSON: %s", payload)
	}
	return json.RawMessage(payload), nil
}

// StripJSONFences removes a surrounding markdown code fence (``` or ```json)
// from model output and trims whitespace. Text without a fence is returned
// trimmed as-is.
func StripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || strings.EqualFold(first, "json") {
			s = s[idx+1:]
		}
	} else {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
		return strings.TrimPrefix(s, "json")
	}

	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
