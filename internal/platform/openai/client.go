package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/notebook-backend/internal/platform/envutil"
	"github.com/yungbote/notebook-backend/internal/platform/httpx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Turn is one message handed to the chat model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// queryInstruction is prepended to search queries before embedding so the
// query vector lands in the same space the passage vectors were trained
// against.
const queryInstruction = "Represent this sentence for searching relevant passages: "

// Client talks to an OpenAI-compatible API: embeddings, schema-constrained
// JSON generation, plain text generation and streamed chat.
type Client struct {
	log         *logger.Logger
	http        *http.Client
	baseURL     string
	apiKey      string
	chatModel   string
	embedModel  string
	embedDims   int
	maxAttempts int
	backoffBase time.Duration
}

func NewClient(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	return &Client{
		log:         log.With("service", "OpenAIClient"),
		http:        &http.Client{Timeout: envutil.Dur("OPENAI_HTTP_TIMEOUT", 120*time.Second)},
		baseURL:     strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		apiKey:      apiKey,
		chatModel:   envutil.Str("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		embedModel:  envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-large"),
		embedDims:   envutil.Int("OPENAI_EMBED_DIMS", 3072),
		maxAttempts: envutil.Int("OPENAI_MAX_ATTEMPTS", 3),
		backoffBase: envutil.Dur("OPENAI_BACKOFF_BASE", 2*time.Second),
	}, nil
}

// NewClientWithURL builds a client against a fixed endpoint. Tests only.
func NewClientWithURL(log *logger.Logger, base string) *Client {
	return &Client{
		log:         log.With("service", "OpenAIClient"),
		http:        &http.Client{Timeout: 10 * time.Second},
		baseURL:     strings.TrimRight(base, "/"),
		apiKey:      "test",
		chatModel:   "test-chat",
		embedModel:  "test-embed",
		embedDims:   4,
		maxAttempts: 1,
		backoffBase: 10 * time.Millisecond,
	}
}

// Dims is the configured embedding dimensionality.
func (c *Client) Dims() int { return c.embedDims }

// Embed returns one vector per input text, index-aligned. Empty inputs
// yield empty vectors rather than an error so callers can decide their
// own fallback.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	// The API rejects empty strings; substitute and blank the result.
	blank := make([]bool, len(texts))
	input := make([]string, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			blank[i] = true
			t = " "
		}
		input[i] = t
	}

	body := map[string]any{
		"model":      c.embedModel,
		"input":      input,
		"dimensions": c.embedDims,
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, "embed", "/v1/embeddings", body, &out); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	for i := range vectors {
		if blank[i] {
			vectors[i] = nil
			continue
		}
		if len(vectors[i]) != 0 && len(vectors[i]) != c.embedDims {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d want %d", len(vectors[i]), c.embedDims)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query with the retrieval instruction
// prefix.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{queryInstruction + text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// GenerateText runs a non-streaming completion and returns the text.
func (c *Client) GenerateText(ctx context.Context, system, user string) (string, error) {
	body := map[string]any{
		"model": c.chatModel,
		"messages": []Turn{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
	}
	var out chatResponse
	if err := c.doJSON(ctx, "generate_text", "/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	return out.text(), nil
}

// GenerateJSON runs a completion constrained to the given JSON schema and
// decodes the result into a generic map.
func (c *Client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	body := map[string]any{
		"model": c.chatModel,
		"messages": []Turn{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}
	var out chatResponse
	if err := c.doJSON(ctx, "generate_json", "/v1/chat/completions", body, &out); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(out.text())
	if text == "" {
		return nil, fmt.Errorf("empty model response for %s", schemaName)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", schemaName, err)
	}
	return parsed, nil
}

// StreamChat streams a completion for the given ordered turns, invoking
// onDelta for each partial text fragment, and returns the full text.
// Cancelling ctx terminates the stream.
func (c *Client) StreamChat(ctx context.Context, turns []Turn, onDelta func(string)) (string, error) {
	body := map[string]any{
		"model":    c.chatModel,
		"messages": turns,
		"stream":   true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &httpError{Status: resp.StatusCode, Body: string(raw)}
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(_, data string) error {
		var ev struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Non-delta frames (usage, pings) are skipped.
			return nil
		}
		for _, ch := range ev.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			full.WriteString(ch.Delta.Content)
			if onDelta != nil {
				onDelta(ch.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		return full.String(), err
	}
	return full.String(), nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (r chatResponse) text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("openai: status %d: %s", e.Status, body)
}

// HTTPStatusCode exposes the status for resilience-layer classification.
func (e *httpError) HTTPStatusCode() int { return e.Status }

// IsRetryable reports whether the error warrants another attempt.
func IsRetryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return httpx.IsRetryableHTTPStatus(he.Status)
	}
	return httpx.IsRetryableError(err)
}

// doJSON posts the body and decodes the response, retrying retryable
// failures with exponential backoff and Retry-After awareness.
func (c *Client) doJSON(ctx context.Context, op, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := c.backoffBase

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			httpx.JitterSleep(ctx, backoff)
			backoff *= 2
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		retryAfter, err := c.doOnce(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == attempts {
			return err
		}
		if retryAfter > 0 {
			backoff = retryAfter
		}
		c.log.Warn("openai call retrying", "operation", op, "attempt", attempt, "error", err)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpx.RetryAfterDuration(resp.Header), &httpError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return 0, nil
}
