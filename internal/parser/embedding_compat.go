package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/tracing"
)

var embedTracer = otel.Tracer("resume-agent-go/parser/embedding")

// ErrEmbeddingUnavailable 未配置 embedding 服务
var ErrEmbeddingUnavailable = errors.New("embedding 服务不可用")

// CompatEmbedder 调用 OpenAI 兼容的 /embeddings 接口，实现 eino embedding.Embedder
type CompatEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// EmbedderOption CompatEmbedder 的配置选项
type EmbedderOption func(*CompatEmbedder)

// WithEmbedderHTTPClient 自定义 HTTP 客户端
func WithEmbedderHTTPClient(c *http.Client) EmbedderOption {
	return func(e *CompatEmbedder) {
		e.httpClient = c
	}
}

// WithEmbedderLogger 配置日志
func WithEmbedderLogger(l zerolog.Logger) EmbedderOption {
	return func(e *CompatEmbedder) {
		e.logger = l
	}
}

// NewCompatEmbedder 创建 Embedder，apiKey 为空时返回 ErrEmbeddingUnavailable
func NewCompatEmbedder(apiKey string, cfg config.EmbeddingConfig, opts ...EmbedderOption) (*CompatEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API密钥不能为空", ErrEmbeddingUnavailable)
	}

	e := &CompatEmbedder{
		apiKey:     apiKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Logger.With().Str("component", "embedder").Logger(),
	}
	if e.model == "" {
		e.model = "text-embedding-3-small"
	}
	if e.baseURL == "" {
		e.baseURL = "https://api.openai.com/v1/embeddings"
	}
	if e.batchSize <= 0 {
		e.batchSize = 64
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dimensions 配置的向量维度，0 表示由服务决定
func (e *CompatEmbedder) Dimensions() int {
	return e.dimensions
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// EmbedStrings 按 batchSize 分批请求，返回顺序与输入一致
func (e *CompatEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	ctx, span := embedTracer.Start(ctx, "CompatEmbedder.EmbedStrings")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", model),
		attribute.Int("embedding.texts", len(texts)),
	)

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatch(ctx, model, texts[start:end])
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeExternal)
			return nil, err
		}
		out = append(out, vecs...)
	}

	e.logger.Debug().Int("texts", len(texts)).Int("dim", firstDim(out)).Msg("文本向量化完成")
	return out, nil
}

func (e *CompatEmbedder) embedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	reqBody := embeddingRequest{
		Input:          texts,
		Model:          model,
		Dimensions:     e.dimensions,
		EncodingFormat: "float",
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed embeddingResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("embedding API调用失败, 状态码: %d, 类型: %s, 错误: %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("embedding API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, tracing.TruncateString(string(body), tracing.DefaultMaxLength))
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("embedding API返回错误: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding 数量不匹配: 期望 %d, 实际 %d", len(texts), len(parsed.Data))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vecs := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func firstDim(vecs [][]float64) int {
	if len(vecs) > 0 {
		return len(vecs[0])
	}
	return 0
}
