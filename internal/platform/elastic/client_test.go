package elastic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithURL(logger.NewNop(), srv.URL), srv
}

func TestCreateIndexAlreadyExistsIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"resource_already_exists_exception"},"status":400}`))
	})
	if err := c.CreateIndex(context.Background(), "notebooklm-chunks", map[string]any{}); err != nil {
		t.Fatalf("expected idempotent create, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusConflict, IsConflict, "conflict"},
		{http.StatusBadRequest, IsMalformed, "malformed"},
		{http.StatusServiceUnavailable, IsUnavailable, "unavailable"},
		{http.StatusTooManyRequests, IsUnavailable, "rate_limited"},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		})
		_, err := c.Search(context.Background(), "idx", map[string]any{"query": map[string]any{}})
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.check(err) {
			t.Fatalf("%s: wrong classification for status %d: %v", tc.name, tc.status, err)
		}
	}
}

func TestBulkCollectsPerItemFailures(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"took":   3,
			"errors": true,
			"items": []map[string]any{
				{"index": map[string]any{"_id": "a:0", "status": 201}},
				{"index": map[string]any{"_id": "a:1", "status": 400, "error": map[string]any{
					"type": "mapper_parsing_exception", "reason": "failed to parse",
				}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	res, err := c.Bulk(context.Background(), "idx", []BulkOp{
		{ID: "a:0", Doc: map[string]any{"content": "x"}},
		{ID: "a:1", Doc: map[string]any{"content": "y"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].ID != "a:1" {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
}

func TestDeleteByQueryMissingIndexIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})
	deleted, err := c.DeleteByQuery(context.Background(), "gone", map[string]any{"match_all": map[string]any{}})
	if err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted, got %d", deleted)
	}
}

func TestRerankParsesInferenceResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_inference/rerank/my-model" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"rerank":[{"index":1,"relevance_score":0.92},{"index":0,"relevance_score":0.31}]}`))
	})
	out, err := c.Rerank(context.Background(), "my-model", "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0].Index != 1 || out[0].Score != 0.92 {
		t.Fatalf("unexpected rerank output: %+v", out)
	}
}
