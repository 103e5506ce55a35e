package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/types"
)

func chunks() []types.Section {
	return []types.Section{
		{Name: types.SectionSkills, Text: "Go Kubernetes Redis", TotalChunks: 1},
		{Name: types.SectionEducation, Text: "Python Django university", TotalChunks: 1},
		{Name: types.SectionExperience, Text: "Go Go microservices", TotalChunks: 1},
	}
}

// keywordEmbedder 按关键词出现次数生成向量
type keywordEmbedder struct {
	calls int32
	err   error
}

func (e *keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		l := strings.ToLower(t)
		out[i] = []float64{
			float64(strings.Count(l, "go")) + 0.1,
			float64(strings.Count(l, "python")) + 0.1,
			float64(strings.Count(l, "university")) + 0.1,
		}
	}
	return out, nil
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"go", "c", "k8s", "简历"}, Tokenize("Go, C++ / K8s; 简历"))
}

func TestBM25TopK(t *testing.T) {
	idx := NewBM25(chunks())
	top := idx.TopK("kubernetes experience", 2)
	require.Len(t, top, 2)
	assert.Equal(t, types.SectionSkills, top[0].Name)

	scores := idx.Scores("go")
	assert.Greater(t, scores[0], 0.0, "高频词的 idf 取下限后仍为正")
	assert.Greater(t, scores[2], scores[0], "词频更高的文档得分更高")
	assert.Zero(t, scores[1])

	assert.Len(t, idx.TopK("anything", 10), 3, "k 大于文档数时返回全部")
	assert.Nil(t, NewBM25(nil).TopK("go", 3))
}

func TestMaximalMarginalRelevance(t *testing.T) {
	query := []float64{1, 1}
	candidates := [][]float64{{1, 0.2}, {1, 0.25}, {0.2, 1}}

	assert.Equal(t, []int{1, 2}, MaximalMarginalRelevance(query, candidates, 0.5, 2), "第二个结果应选差异更大的候选")
	assert.Equal(t, []int{1, 0}, MaximalMarginalRelevance(query, candidates, 1, 2))
	assert.Len(t, MaximalMarginalRelevance(query, candidates, 0.5, 10), 3)
	assert.Nil(t, MaximalMarginalRelevance(query, nil, 0.5, 3))
}

func TestBuilderReusesExistingStore(t *testing.T) {
	factory := storage.NewSQLiteStoreFactory(t.TempDir())
	emb := &keywordEmbedder{}
	b := NewBuilder(factory, emb, WithBuilderLogger(zerolog.Nop()))
	ctx := context.Background()

	first, err := b.Build(ctx, "alice", chunks())
	require.NoError(t, err)
	require.NotNil(t, first.Vector)
	assert.False(t, first.Reused)
	require.NoError(t, first.Close())
	callsAfterFirst := atomic.LoadInt32(&emb.calls)

	second, err := b.Build(ctx, "alice", chunks())
	require.NoError(t, err)
	defer second.Close()
	require.NotNil(t, second.Vector)
	assert.True(t, second.Reused)
	assert.Equal(t, callsAfterFirst, atomic.LoadInt32(&emb.calls), "复用时不应重新向量化分块")

	users, err := b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}

func TestBuilderDegradesToLexicalOnEmbeddingFailure(t *testing.T) {
	b := NewBuilder(storage.NewSQLiteStoreFactory(t.TempDir()), &keywordEmbedder{err: errors.New("quota exceeded")})
	h, err := b.Build(context.Background(), "bob", chunks())
	require.NoError(t, err)
	assert.Nil(t, h.Vector)
	require.NotNil(t, h.Lexical)

	got := h.Retrieve(context.Background(), "python", DefaultParams(), zerolog.Nop())
	require.Len(t, got, 3)
	assert.Equal(t, types.SectionEducation, got[0].Name)

	lexicalOnly := NewBuilder(nil, nil)
	h, err = lexicalOnly.Build(context.Background(), "carol", chunks())
	require.NoError(t, err)
	assert.Nil(t, h.Vector)
}

func TestHybridRetrieveConcatenatesWithoutDedup(t *testing.T) {
	b := NewBuilder(storage.NewSQLiteStoreFactory(t.TempDir()), &keywordEmbedder{})
	h, err := b.Build(context.Background(), "dana", chunks())
	require.NoError(t, err)
	defer h.Close()

	got := h.Retrieve(context.Background(), "python university", DefaultParams(), zerolog.Nop())
	require.Len(t, got, 6, "词法3条 + 向量3条")
	assert.Equal(t, types.SectionEducation, got[0].Name)
	assert.Equal(t, types.SectionEducation, got[3].Name, "向量检索的首条同样是最相关的分块")
}

func TestBuilderSerializesSameUser(t *testing.T) {
	b := NewBuilder(storage.NewSQLiteStoreFactory(t.TempDir()), &keywordEmbedder{})
	var wg sync.WaitGroup
	var reused int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := b.Build(context.Background(), "erin", chunks())
			if assert.NoError(t, err) {
				if h.Reused {
					atomic.AddInt32(&reused, 1)
				}
				h.Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&reused), "只有第一次构建会写入向量")
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.RetrievalConfig{LexicalK: 5})
	assert.Equal(t, Params{LexicalK: 5, VectorK: 3, FetchK: 10, LambdaMult: 0.5}, p)
}
