package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

func TestEmbedMapsByIndexAndBlanksEmptyInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 3 {
			t.Errorf("expected 3 inputs, got %d", len(req.Input))
		}
		// Return out of order to exercise index mapping.
		_, _ = w.Write([]byte(`{"data":[
			{"index":2,"embedding":[0.3,0.3,0.3,0.3]},
			{"index":0,"embedding":[0.1,0.1,0.1,0.1]},
			{"index":1,"embedding":[0.2,0.2,0.2,0.2]}
		]}`))
	}))
	defer srv.Close()

	c := NewClientWithURL(logger.NewNop(), srv.URL)
	vecs, err := c.Embed(context.Background(), []string{"alpha", "", "gamma"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[2][0] != 0.3 {
		t.Fatalf("index mapping broken: %v", vecs)
	}
	if vecs[1] != nil {
		t.Fatalf("blank input must yield empty vector, got %v", vecs[1])
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	c := NewClientWithURL(logger.NewNop(), srv.URL)
	if _, err := c.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestStreamChatConcatenatesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo ", "world"} {
			frame := map[string]any{"choices": []map[string]any{{"delta": map[string]any{"content": chunk}}}}
			raw, _ := json.Marshal(frame)
			_, _ = w.Write([]byte("data: " + string(raw) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClientWithURL(logger.NewNop(), srv.URL)
	var deltas []string
	full, err := c.StreamChat(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "Hello world" {
		t.Fatalf("unexpected full text %q", full)
	}
	if strings.Join(deltas, "") != "Hello world" {
		t.Fatalf("unexpected deltas %v", deltas)
	}
}

func TestGenerateJSONDecodesSchemaResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"needsReformulation\":true,\"query\":\"q2\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithURL(logger.NewNop(), srv.URL)
	out, err := c.GenerateJSON(context.Background(), "sys", "user", "reformulate", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["query"] != "q2" {
		t.Fatalf("unexpected payload: %v", out)
	}
}

func TestRetryableClassification(t *testing.T) {
	if !IsRetryable(&httpError{Status: 429}) {
		t.Fatal("429 must be retryable")
	}
	if !IsRetryable(&httpError{Status: 503}) {
		t.Fatal("503 must be retryable")
	}
	if IsRetryable(&httpError{Status: 400}) {
		t.Fatal("400 must not be retryable")
	}
}
