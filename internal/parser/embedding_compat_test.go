package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
)

func newEmbeddingServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		// 倒序返回，验证客户端按 index 排序
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float64{float64(len(req.Input[i])), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
}

func TestCompatEmbedderBatchesAndOrders(t *testing.T) {
	var calls int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	e, err := NewCompatEmbedder("test-key", config.EmbeddingConfig{BaseURL: srv.URL, BatchSize: 2},
		WithEmbedderLogger(testLogger()))
	require.NoError(t, err)

	vecs, err := e.EmbedStrings(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float64{1, 1}, vecs[0])
	assert.Equal(t, []float64{2, 1}, vecs[1])
	assert.Equal(t, []float64{3, 1}, vecs[2])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "3条文本按批大小2应请求两次")
}

func TestCompatEmbedderErrors(t *testing.T) {
	_, err := NewCompatEmbedder("", config.EmbeddingConfig{})
	assert.True(t, errors.Is(err, ErrEmbeddingUnavailable))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	e, err := NewCompatEmbedder("k", config.EmbeddingConfig{BaseURL: srv.URL}, WithEmbedderLogger(testLogger()))
	require.NoError(t, err)
	_, err = e.EmbedStrings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")

	vecs, err := e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
