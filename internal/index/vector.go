package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"

	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/types"
)

// ErrEmptyEmbedding 向量化服务返回了空结果
var ErrEmptyEmbedding = errors.New("查询向量为空")

// VectorIndex 单个用户的向量检索
type VectorIndex struct {
	store    storage.VectorStore
	embedder embedding.Embedder
}

// NewVectorIndex 组合向量存储与向量化器
func NewVectorIndex(store storage.VectorStore, embedder embedding.Embedder) *VectorIndex {
	return &VectorIndex{store: store, embedder: embedder}
}

// Location 底层存储位置
func (v *VectorIndex) Location() string { return v.store.Location() }

// Close 释放底层存储
func (v *VectorIndex) Close() error { return v.store.Close() }

func (v *VectorIndex) embedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := v.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vecs[0], nil
}

// Similarity 余弦相似度 top-k
func (v *VectorIndex) Similarity(ctx context.Context, query string, k int) ([]types.Section, error) {
	vec, err := v.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := v.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]types.Section, len(hits))
	for i, h := range hits {
		out[i] = h.Document.Section
	}
	return out, nil
}

// MMR 先取 fetchK 个候选，再做最大边际相关性重排取 k 个
func (v *VectorIndex) MMR(ctx context.Context, query string, k, fetchK int, lambda float64) ([]types.Section, error) {
	vec, err := v.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if fetchK < k {
		fetchK = k
	}
	hits, err := v.store.Search(ctx, vec, fetchK)
	if err != nil {
		return nil, err
	}
	candidates := make([][]float64, len(hits))
	for i, h := range hits {
		if len(h.Document.Vector) == 0 {
			return nil, fmt.Errorf("检索结果缺少向量, 无法进行MMR")
		}
		candidates[i] = h.Document.Vector
	}
	picked := MaximalMarginalRelevance(vec, candidates, lambda, k)
	out := make([]types.Section, len(picked))
	for i, idx := range picked {
		out[i] = hits[idx].Document.Section
	}
	return out, nil
}
