package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/txembed/internal/embedding"
)

// embedderFunc adapts a function to the Embedder interface.
type embedderFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f embedderFunc) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}

// fakeGemini serves batchEmbedContents, answering each request with the
// vector produced by valuesFor and recording the size of every batch.
type fakeGemini struct {
	mu        sync.Mutex
	sizes     []int
	valuesFor func(text string) []float64
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.sizes = append(f.sizes, len(req.Requests))
	f.mu.Unlock()

	type values struct {
		Values []float64 `json:"values"`
	}
	out := make([]values, len(req.Requests))
	for i, rr := range req.Requests {
		out[i] = values{Values: f.valuesFor(rr.Content.Parts[0].Text)}
	}
	json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
}

// newTestServer wires the handler over a real BatchClient talking to fake.
func newTestServer(t *testing.T, fake http.Handler) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	cfg := embedding.Config{BaseURL: upstream.URL, APIKey: "test", Dimension: 2, BatchSize: 25}
	client := embedding.NewBatchClient(embedding.NewGeminiProvider(cfg), cfg, zap.NewNop())
	return newServerWith(t, client, Options{})
}

func newServerWith(t *testing.T, e Embedder, opts Options) *httptest.Server {
	t.Helper()
	h := NewHandler(e, zap.NewNop(), opts)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func postRaw(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func descriptions(texts ...string) map[string]any {
	items := make([]map[string]string, len(texts))
	for i, text := range texts {
		items[i] = map[string]string{"description": text}
	}
	return map[string]any{"descriptions": items}
}

// --- Tests ---

func TestCreateEmbeddings_Normalized(t *testing.T) {
	raw := map[string][]float64{
		"Compra de alimentos":       {3, 4},
		"Pagamento de conta de luz": {1, 2, 2},
	}
	ts := newTestServer(t, &fakeGemini{valuesFor: func(text string) []float64 { return raw[text] }})

	resp := postJSON(t, ts, "/embedding", descriptions("Compra de alimentos", "Pagamento de conta de luz"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Embedding-Request-ID"))

	var body struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	decodeJSON(t, resp, &body)

	require.Len(t, body.Embeddings, 2)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, body.Embeddings[0], 1e-9)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3, 2.0 / 3}, body.Embeddings[1], 1e-9)
}

func TestCreateEmbeddings_BatchesPreserveOrder(t *testing.T) {
	fake := &fakeGemini{valuesFor: func(text string) []float64 {
		var n float64
		fmt.Sscanf(text, "tx-%g", &n)
		return []float64{n, 1}
	}}
	ts := newTestServer(t, fake)

	texts := make([]string, 60)
	for i := range texts {
		texts[i] = fmt.Sprintf("tx-%d", i)
	}
	resp := postJSON(t, ts, "/embedding", descriptions(texts...))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	decodeJSON(t, resp, &body)

	assert.Equal(t, []int{25, 25, 10}, fake.sizes)
	require.Len(t, body.Embeddings, 60)
	for i, v := range body.Embeddings {
		// [i, 1] normalized: the ratio of the components recovers i.
		assert.InDelta(t, float64(i), v[0]/v[1], 1e-6, "embedding %d out of order", i)
	}
}

func TestCreateEmbeddings_Empty(t *testing.T) {
	ts := newTestServer(t, &fakeGemini{valuesFor: func(string) []float64 {
		t.Error("upstream must not be called for an empty request")
		return nil
	}})

	resp := postRaw(t, ts, "/embedding", `{"descriptions": []}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"embeddings": []}`, string(raw))
}

func TestCreateEmbeddings_UpstreamFailure(t *testing.T) {
	ts := newServerWith(t, embedderFunc(func(context.Context, []string) ([][]float64, error) {
		return nil, errors.New("Upstream Gemini failure")
	}), Options{})

	resp := postJSON(t, ts, "/embedding", descriptions("Compra de alimentos"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Contains(t, body["message"], "Upstream Gemini failure")
	assert.Contains(t, body["message"], "Compra de alimentos")
}

func TestCreateEmbeddings_UpstreamStatus(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))

	resp := postJSON(t, ts, "/embedding", descriptions("Compra de alimentos"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Contains(t, body["message"], "status 429")
	assert.Contains(t, body["message"], "quota exceeded")
}

func TestCreateEmbeddings_Timeout(t *testing.T) {
	ts := newServerWith(t, embedderFunc(func(ctx context.Context, _ []string) ([][]float64, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), Options{RequestTimeout: 20 * time.Millisecond})

	resp := postJSON(t, ts, "/embedding", descriptions("slow"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Contains(t, body["message"], context.DeadlineExceeded.Error())
}

func TestCreateEmbeddings_Validation(t *testing.T) {
	called := false
	ts := newServerWith(t, embedderFunc(func(context.Context, []string) ([][]float64, error) {
		called = true
		return nil, nil
	}), Options{})

	bodies := map[string]string{
		"malformed json":      `{"descriptions": [`,
		"missing field":       `{}`,
		"null descriptions":   `{"descriptions": null}`,
		"wrong type":          `{"descriptions": "Compra"}`,
		"missing description": `{"descriptions": [{}]}`,
		"blank description":   `{"descriptions": [{"description": "  "}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			resp := postRaw(t, ts, "/embedding", body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var out map[string]string
			decodeJSON(t, resp, &out)
			assert.NotEmpty(t, out["message"])
		})
	}
	assert.False(t, called, "embedder must not run for invalid input")
}

func TestHomeRedirect(t *testing.T) {
	ts := newServerWith(t, embedderFunc(nil), Options{})
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/openapi", resp.Header.Get("Location"))
}

func TestOpenAPIDocument(t *testing.T) {
	ts := newServerWith(t, embedderFunc(nil), Options{})

	resp, err := http.Get(ts.URL + "/openapi")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]any
	decodeJSON(t, resp, &doc)
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/embedding")
}

func TestHealthCheck(t *testing.T) {
	ts := newServerWith(t, embedderFunc(nil), Options{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts := newServerWith(t, embedderFunc(func(context.Context, []string) ([][]float64, error) {
		return [][]float64{{1, 0}}, nil
	}), Options{Registry: reg})

	resp := postJSON(t, ts, "/embedding", descriptions("Compra de alimentos"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(raw), `txembed_http_requests_total{method="POST",route="/embedding",status="200"} 1`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	ts := newServerWith(t, embedderFunc(nil), Options{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "a; b", summarize([]string{"a", "b"}))

	long := summarize([]string{strings.Repeat("x", 1000)})
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Len(t, []rune(long), maxSummaryLen+3)
}
