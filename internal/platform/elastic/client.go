package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/notebook-backend/internal/platform/envutil"
	"github.com/yungbote/notebook-backend/internal/platform/httpx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Client is a thin Elasticsearch HTTP client covering the operations the
// index layer needs: index creation, bulk writes, search, delete-by-query,
// refresh and the inference rerank endpoint.
type Client struct {
	log         *logger.Logger
	http        *http.Client
	baseURL     string
	apiKey      string
	maxAttempts int
	backoffBase time.Duration
}

func NewClient(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := envutil.Str("ELASTIC_URL", "http://localhost:9200")
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid ELASTIC_URL: %w", err)
	}
	return &Client{
		log:         log.With("service", "ElasticClient"),
		http:        &http.Client{Timeout: envutil.Dur("ELASTIC_HTTP_TIMEOUT", 30*time.Second)},
		baseURL:     strings.TrimRight(base, "/"),
		apiKey:      envutil.Str("ELASTIC_API_KEY", ""),
		maxAttempts: envutil.Int("ELASTIC_MAX_ATTEMPTS", 3),
		backoffBase: envutil.Dur("ELASTIC_BACKOFF_BASE", 2*time.Second),
	}, nil
}

// NewClientWithURL builds a client against a fixed URL. Tests only.
func NewClientWithURL(log *logger.Logger, base string) *Client {
	return &Client{
		log:         log.With("service", "ElasticClient"),
		http:        &http.Client{Timeout: 10 * time.Second},
		baseURL:     strings.TrimRight(base, "/"),
		maxAttempts: 1,
		backoffBase: 10 * time.Millisecond,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	var out map[string]any
	return c.doJSON(ctx, "ping", http.MethodGet, "/", nil, &out)
}

// CreateIndex creates the index with the given settings/mappings body.
// Idempotent: an already-existing index is not an error.
func (c *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	var out map[string]any
	err := c.doJSON(ctx, "create_index", http.MethodPut, "/"+url.PathEscape(index), body, &out)
	if err == nil {
		return nil
	}
	var oe *OperationError
	if errors.As(err, &oe) && strings.Contains(oe.Message, "resource_already_exists_exception") {
		return nil
	}
	return err
}

// BulkOp is one document write in a bulk request.
type BulkOp struct {
	ID  string
	Doc any
}

// BulkFailure is one per-item error from a bulk response.
type BulkFailure struct {
	ID     string
	Status int
	Reason string
}

type BulkResult struct {
	Took     int
	Total    int
	Failures []BulkFailure
}

// Bulk index-writes the given docs. Per-item failures are collected into
// the result; the call itself only errors on transport or whole-request
// failure.
func (c *Client) Bulk(ctx context.Context, index string, ops []BulkOp) (*BulkResult, error) {
	if len(ops) == 0 {
		return &BulkResult{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		action := map[string]any{"index": map[string]any{"_index": index, "_id": op.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, opErr("bulk", CodeEncodeFailed, err.Error(), 0, err)
		}
		if err := enc.Encode(op.Doc); err != nil {
			return nil, opErr("bulk", CodeEncodeFailed, err.Error(), 0, err)
		}
	}

	var out struct {
		Took   int  `json:"took"`
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := c.doRaw(ctx, "bulk", http.MethodPost, "/_bulk?refresh=false", buf.Bytes(), "application/x-ndjson", &out); err != nil {
		return nil, err
	}

	res := &BulkResult{Took: out.Took, Total: len(ops)}
	if out.Errors {
		for _, item := range out.Items {
			for _, st := range item {
				if st.Error != nil {
					reason := st.Error.Type
					if st.Error.Reason != "" {
						reason += ": " + st.Error.Reason
					}
					res.Failures = append(res.Failures, BulkFailure{ID: st.ID, Status: st.Status, Reason: reason})
				}
			}
		}
	}
	return res, nil
}

// Hit is one search result with its raw source.
type Hit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

// Search runs a query body against the index and returns the hits.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) ([]Hit, error) {
	var out struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Score  *float64        `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	path := "/" + url.PathEscape(index) + "/_search"
	if err := c.doJSON(ctx, "search", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		score := 0.0
		if h.Score != nil {
			score = *h.Score
		}
		hits = append(hits, Hit{ID: h.ID, Score: score, Source: h.Source})
	}
	return hits, nil
}

// DeleteByQuery removes all docs matching the query and forces a refresh
// so subsequent reads observe the delete. A missing index is treated as
// already-deleted.
func (c *Client) DeleteByQuery(ctx context.Context, index string, query map[string]any) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	path := "/" + url.PathEscape(index) + "/_delete_by_query?refresh=true&conflicts=proceed"
	err := c.doJSON(ctx, "delete_by_query", http.MethodPost, path, map[string]any{"query": query}, &out)
	if err != nil {
		var oe *OperationError
		if errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) Refresh(ctx context.Context, index string) error {
	var out map[string]any
	path := "/" + url.PathEscape(index) + "/_refresh"
	return c.doJSON(ctx, "refresh", http.MethodPost, path, nil, &out)
}

// RankedText is one reranker verdict referencing the input by position.
type RankedText struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Rerank scores texts against the query via the inference API. Results
// come back ordered by descending relevance.
func (c *Client) Rerank(ctx context.Context, modelID, query string, texts []string) ([]RankedText, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, opErr("rerank", CodeValidationFailed, "model id required", 0, nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{"query": query, "input": texts}
	var out struct {
		Rerank []RankedText `json:"rerank"`
	}
	path := "/_inference/rerank/" + url.PathEscape(modelID)
	if err := c.doJSON(ctx, "rerank", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.Rerank, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return opErr(op, CodeEncodeFailed, err.Error(), 0, err)
		}
	}
	return c.doRaw(ctx, op, method, path, payload, "application/json", out)
}

// doRaw issues the request with retry on retryable statuses and transport
// failures. Non-2xx terminal statuses are classified into the operation
// error taxonomy.
func (c *Client) doRaw(ctx context.Context, op, method, path string, payload []byte, contentType string, out any) error {
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
			return classifyTransportErr(op, err)
		}

		status, retryAfter, err := c.doOnce(ctx, op, method, path, payload, contentType, out)
		if err == nil {
			return nil
		}
		lastErr = err

		retryable := IsUnavailable(err)
		if !retryable || attempt == attempts {
			return err
		}
		if retryAfter > 0 {
			backoff = retryAfter
		}
		c.log.Warn("elastic call retrying",
			"operation", op, "attempt", attempt, "status", status, "error", err)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, payload []byte, contentType string, out any) (int, time.Duration, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, 0, opErr(op, CodeValidationFailed, err.Error(), 0, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, classifyTransportErr(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return resp.StatusCode, 0, opErr(op, CodeDecodeFailed, err.Error(), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, httpx.RetryAfterDuration(resp.Header),
			classifyStatus(op, resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, 0, opErr(op, CodeDecodeFailed, err.Error(), resp.StatusCode, err)
		}
	}
	return resp.StatusCode, 0, nil
}

func classifyStatus(op string, status int, body string) *OperationError {
	msg := body
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	switch {
	case status == http.StatusConflict:
		return opErr(op, CodeConflict, msg, status, nil)
	case status == http.StatusBadRequest:
		return opErr(op, CodeMalformed, msg, status, nil)
	case httpx.IsRetryableHTTPStatus(status):
		return opErr(op, CodeUnavailable, msg, status, nil)
	default:
		return opErr(op, CodeMalformed, msg, status, nil)
	}
}

func classifyTransportErr(op string, err error) *OperationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, CodeTimeout, err.Error(), 0, err)
	}
	if errors.Is(err, context.Canceled) {
		return opErr(op, CodeTransportFailed, err.Error(), 0, err)
	}
	if httpx.IsRetryableError(err) {
		return opErr(op, CodeTransportFailed, err.Error(), 0, err)
	}
	return opErr(op, CodeTransportFailed, err.Error(), 0, err)
}
