package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var indexTracer = otel.Tracer("resume-agent-go/index")

// Params 混合检索参数
type Params struct {
	LexicalK   int
	VectorK    int
	FetchK     int
	LambdaMult float64
}

// DefaultParams 词法3条 + MMR 3条 (fetch_k=10, λ=0.5)
func DefaultParams() Params {
	return Params{LexicalK: 3, VectorK: 3, FetchK: 10, LambdaMult: 0.5}
}

// ParamsFromConfig 缺省值按 DefaultParams 补齐
func ParamsFromConfig(cfg config.RetrievalConfig) Params {
	p := DefaultParams()
	if cfg.LexicalK > 0 {
		p.LexicalK = cfg.LexicalK
	}
	if cfg.VectorK > 0 {
		p.VectorK = cfg.VectorK
	}
	if cfg.FetchK > 0 {
		p.FetchK = cfg.FetchK
	}
	if cfg.LambdaMult > 0 {
		p.LambdaMult = cfg.LambdaMult
	}
	return p
}

// Hybrid 一个用户的词法索引与可选的向量索引
type Hybrid struct {
	Username string
	Lexical  *BM25
	Vector   *VectorIndex // 向量化或存储不可用时为 nil
	Reused   bool         // 向量存储中已有数据，未重新写入
	Chunks   int
}

// Retrieve 词法 top-k 与 MMR top-k 直接拼接，不去重。MMR 失败时退回相似度检索
func (h *Hybrid) Retrieve(ctx context.Context, query string, p Params, logger zerolog.Logger) []types.Section {
	ctx, span := indexTracer.Start(ctx, "Hybrid.Retrieve", trace.WithAttributes(
		attribute.String("resume.username", tracing.SafeAttributeValue("resume.username", h.Username, tracing.DefaultMaxLength)),
		attribute.String("retrieval.query", tracing.SafeQuery(query)),
		attribute.Bool("index.vector_available", h.Vector != nil),
	))
	defer span.End()

	var out []types.Section
	if h.Lexical != nil {
		out = append(out, h.Lexical.TopK(query, p.LexicalK)...)
	}
	if h.Vector == nil {
		return out
	}
	docs, err := h.Vector.MMR(ctx, query, p.VectorK, p.FetchK, p.LambdaMult)
	if err != nil {
		logger.Warn().Err(err).Str("username", h.Username).Msg("MMR检索失败, 改用相似度检索")
		docs, err = h.Vector.Similarity(ctx, query, p.VectorK)
		if err != nil {
			logger.Warn().Err(err).Str("username", h.Username).Msg("向量检索失败, 仅使用词法检索结果")
			return out
		}
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(out)+len(docs)))
	return append(out, docs...)
}

// Close 释放向量存储
func (h *Hybrid) Close() error {
	if h.Vector != nil {
		return h.Vector.Close()
	}
	return nil
}

// BuilderOption 配置 Builder
type BuilderOption func(*Builder)

// WithBuilderLogger 设置日志
func WithBuilderLogger(l zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// Builder 构建或复用每个用户的索引
type Builder struct {
	factory  storage.VectorStoreFactory
	embedder embedding.Embedder // 可为 nil，此时只构建词法索引
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBuilder 创建索引构建器
func NewBuilder(factory storage.VectorStoreFactory, embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{
		factory:  factory,
		embedder: embedder,
		logger:   zerolog.Nop(),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) userLock(username string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[username]
	if !ok {
		l = &sync.Mutex{}
		b.locks[username] = l
	}
	return l
}

// Build 总是构建词法索引；向量存储已有数据则复用，否则向量化后写入。
// 向量部分出错只记录日志，返回的 Hybrid.Vector 为 nil。
func (b *Builder) Build(ctx context.Context, username string, chunks []types.Section) (*Hybrid, error) {
	if username == "" {
		return nil, fmt.Errorf("用户名不能为空")
	}
	ctx, span := indexTracer.Start(ctx, "Builder.Build", trace.WithAttributes(
		attribute.String("resume.username", tracing.SafeAttributeValue("resume.username", username, tracing.DefaultMaxLength)),
		attribute.Int("index.chunks", len(chunks)),
	))
	defer span.End()

	h := &Hybrid{Username: username, Lexical: NewBM25(chunks), Chunks: len(chunks)}
	log := b.logger.With().Str("username", username).Logger()

	if b.factory == nil || b.embedder == nil {
		log.Warn().Msg("向量检索未配置, 仅使用词法检索")
		return h, nil
	}

	lock := b.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	store, err := b.factory.Open(ctx, username)
	if err != nil {
		log.Warn().Err(err).Msg("打开向量存储失败, 仅使用词法检索")
		return h, nil
	}
	count, err := store.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("读取向量存储失败, 仅使用词法检索")
		store.Close()
		return h, nil
	}

	if count > 0 {
		h.Vector = NewVectorIndex(store, b.embedder)
		h.Reused = true
		span.SetAttributes(attribute.Bool("index.reused", true))
		log.Info().Int("count", count).Str("location", store.Location()).Msg("复用已有向量存储")
		return h, nil
	}

	if len(chunks) == 0 {
		store.Close()
		return h, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := b.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		log.Warn().Err(err).Msg("向量化失败, 仅使用词法检索")
		store.Close()
		return h, nil
	}
	docs, err := storage.DocumentsFromSections(username, chunks, vectors)
	if err == nil {
		err = store.Add(ctx, docs)
	}
	if err != nil {
		log.Warn().Err(err).Msg("写入向量存储失败, 仅使用词法检索")
		store.Close()
		return h, nil
	}
	h.Vector = NewVectorIndex(store, b.embedder)
	log.Info().Int("count", len(docs)).Str("location", store.Location()).Msg("向量存储已创建")
	return h, nil
}

// ListUsers 已持久化向量存储的用户
func (b *Builder) ListUsers(ctx context.Context) ([]string, error) {
	if b.factory == nil {
		return []string{}, nil
	}
	return b.factory.ListUsers(ctx)
}
