package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"resume-agent-go/internal/agent"
	"resume-agent-go/internal/config"
	"resume-agent-go/internal/enricher/github"
	"resume-agent-go/internal/enricher/linkedin"
	"resume-agent-go/internal/index"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/workflow"
	"resume-agent-go/pkg/ratelimit"
)

// ErrLLMUnavailable 没有配置对话模型，问答流程不可用
var ErrLLMUnavailable = errors.New("LLM未配置, 请设置 llm.api_key 或 LLM_API_KEY")

// Components 聚合所有功能组件，服务端和命令行共用
type Components struct {
	Config  *config.Config
	Storage *storage.Storage

	LLM      model.BaseChatModel // 未配置时为 nil
	Embedder embedding.Embedder  // 未配置时为 nil，只使用词法检索

	Loader    *parser.Loader
	Segmenter *parser.Segmenter
	Builder   *index.Builder

	GitHubClient *github.Client
	GitHub       *github.Analyzer
	LinkedIn     *linkedin.Analyzer

	Workflow *workflow.Workflow // LLM 为 nil 时为 nil
}

// ComponentOpt 替换 Components 中的单个组件
type ComponentOpt func(*Components)

// WithcompLLM 使用给定的对话模型，不再按配置创建
func WithcompLLM(m model.BaseChatModel) ComponentOpt {
	return func(c *Components) { c.LLM = m }
}

// WithcompEmbedder 使用给定的向量化模型
func WithcompEmbedder(e embedding.Embedder) ComponentOpt {
	return func(c *Components) { c.Embedder = e }
}

// WithcompLoader 使用给定的文档加载器
func WithcompLoader(l *parser.Loader) ComponentOpt {
	return func(c *Components) { c.Loader = l }
}

// NewComponents 按配置组装组件。LLM 与 Embedder 缺失只降级，不返回错误
func NewComponents(ctx context.Context, cfg *config.Config, store *storage.Storage, logger zerolog.Logger, opts ...ComponentOpt) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	c := &Components{Config: cfg, Storage: store}
	for _, opt := range opts {
		opt(c)
	}

	if c.LLM == nil {
		chat, err := agent.NewChatModel(cfg.LLM, agent.WithChatLogger(logger))
		if err != nil {
			logger.Warn().Err(err).Msg("对话模型初始化失败, 问答与LinkedIn摘要不可用")
		} else {
			quotas := map[string]int{cfg.LLM.Model: cfg.LLM.QPM}
			c.LLM = ratelimit.NewLLMWithRateLimit(chat, cfg.LLM.Model, quotas, cfg.LLM.QPM, cfg.LLM.MaxRetries, 2*time.Second)
			logger.Info().Str("model", cfg.LLM.Model).Int("qpm", cfg.LLM.QPM).Msg("对话模型初始化成功")
		}
	}

	if c.Embedder == nil {
		apiKey := cfg.LLM.Embedding.APIKey
		if apiKey == "" {
			apiKey = cfg.LLM.APIKey
		}
		emb, err := parser.NewCompatEmbedder(apiKey, cfg.LLM.Embedding, parser.WithEmbedderLogger(logger))
		if err != nil {
			logger.Warn().Err(err).Msg("向量化模型初始化失败, 仅使用词法检索")
		} else {
			c.Embedder = emb
		}
	}

	if c.Loader == nil {
		loader, err := parser.NewLoader(ctx, parser.WithLoaderLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("初始化文档加载器失败: %w", err)
		}
		c.Loader = loader
	}

	splitter, err := parser.NewRecursiveSplitter(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	c.Segmenter = parser.NewSegmenter(
		parser.WithSplitter(splitter),
		parser.WithMinSectionLength(cfg.Retrieval.MinSectionLength),
		parser.WithSegmenterLogger(logger),
	)

	var vectors storage.VectorStoreFactory
	if store != nil {
		vectors = store.Vectors
	}
	c.Builder = index.NewBuilder(vectors, c.Embedder, index.WithBuilderLogger(logger))

	c.GitHubClient = github.NewClient(cfg.GitHub, github.WithClientLogger(logger))
	c.GitHub = github.NewAnalyzer(c.GitHubClient, cfg.GitHub, github.WithAnalyzerLogger(logger))

	c.LinkedIn = linkedin.NewAnalyzer(
		linkedin.NewBrightDataScraper(cfg.LinkedIn, nil),
		linkedin.NewBasicScraper(cfg.LinkedIn, nil),
		c.LLM,
		linkedin.WithLogger(logger),
	)

	if c.LLM != nil {
		c.Workflow = workflow.New(workflow.Deps{
			Loader:   c.Loader,
			Splitter: c.Segmenter,
			Builder:  c.Builder,
			GitHub:   c.GitHub,
			LinkedIn: c.LinkedIn,
			Answerer: workflow.FromAgent(agent.NewAnswerer(c.LLM)),
		},
			workflow.WithLogger(logger),
			workflow.WithParams(index.ParamsFromConfig(cfg.Retrieval)),
		)
	}
	return c, nil
}

// RequireWorkflow 问答入口使用，LLM 缺失时返回 ErrLLMUnavailable
func (c *Components) RequireWorkflow() (*workflow.Workflow, error) {
	if c.Workflow == nil {
		return nil, ErrLLMUnavailable
	}
	return c.Workflow, nil
}
