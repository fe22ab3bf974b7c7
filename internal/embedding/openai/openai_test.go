package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/domain"
)

var _ domain.Embedder = (*Client)(nil)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, batch int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:   srv.URL + "/v1",
		APIKeyEnv: "TEST_OPENAI_KEY",
		Model:     "text-embedding-3-large",
		Timeout:   5 * time.Second,
		BatchSize: batch,
	})
	require.NoError(t, err)
	return c
}

func writeEmbeddings(w http.ResponseWriter, inputs []string) {
	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(inputs))
	// Reverse order to check the client sorts by index.
	for i := range inputs {
		j := len(inputs) - 1 - i
		data[i] = item{Object: "embedding", Embedding: []float32{float32(len(inputs[j])), 1, 0}, Index: j}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-3-large"})
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("EMPTY_KEY_ENV", "")
	_, err := NewClient(Config{APIKeyEnv: "EMPTY_KEY_ENV"})
	assert.Error(t, err)
}

func TestEmbedBatchSplitsAndOrders(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-large", req.Model)
		assert.LessOrEqual(t, len(req.Input), 2)
		writeEmbeddings(w, req.Input)
	}, 2)

	vs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, float32(1), vs[0][0])
	assert.Equal(t, float32(2), vs[1][0])
	assert.Equal(t, float32(3), vs[2][0])
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbedRetriesOnRateLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEmbeddings(w, req.Input)
	}, 8)

	v, err := c.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, float32(len("retry me")), v[0])
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"too long","type":"invalid_request_error"}}`))
	}, 8)

	_, err := c.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestEmbedBatchRejectsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, 8)
	_, err := c.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestRetryDelayCapped(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}
