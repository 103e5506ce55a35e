package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
)

const (
	defaultChatURL   = "https://api.openai.com/v1/chat/completions"
	defaultChatModel = "gpt-4o-mini"
)

var agentTracer = otel.Tracer("resume-agent-go/agent")

// ErrEmptyChoices 接口返回了空的 choices
var ErrEmptyChoices = errors.New("chat completion returned no choices")

// ErrStreamUnsupported Stream 未实现
var ErrStreamUnsupported = errors.New("streaming is not supported by this chat model")

// APIError 非 200 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion failed: HTTP %d: %s", e.StatusCode, tracing.TruncateString(e.Body, 300))
}

// Temporary 429 与 5xx 可以重试
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ChatModelOption 配置 ChatModel
type ChatModelOption func(*ChatModel)

// WithChatHTTPClient 替换 HTTP 客户端
func WithChatHTTPClient(c *http.Client) ChatModelOption {
	return func(m *ChatModel) { m.httpClient = c }
}

// WithChatLogger 设置日志
func WithChatLogger(l zerolog.Logger) ChatModelOption {
	return func(m *ChatModel) { m.logger = l }
}

// ChatModel OpenAI 兼容的 chat/completions 客户端
type ChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	httpClient  *http.Client
	logger      zerolog.Logger
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// NewChatModel API key 不能为空
func NewChatModel(cfg config.LLMConfig, opts ...ChatModelOption) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("LLM API 密钥不能为空")
	}
	m := &ChatModel{
		apiKey:      cfg.APIKey,
		modelName:   cfg.Model,
		apiURL:      cfg.APIURL,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: config.Timeout(cfg.TimeoutSeconds, 60*time.Second)},
		logger:      zerolog.Nop(),
	}
	if strings.TrimSpace(m.modelName) == "" {
		m.modelName = defaultChatModel
	}
	if strings.TrimSpace(m.apiURL) == "" {
		m.apiURL = defaultChatURL
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger.Info().Str("api_url", m.apiURL).Str("model", m.modelName).Msg("初始化LLM客户端")
	return m, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate 发送一次非流式请求
func (m *ChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{Temperature: float32Ptr(m.temperature)}, opts...)

	req := chatRequest{Model: m.modelName, Messages: make([]chatMessage, 0, len(messages))}
	if common.Model != nil && *common.Model != "" {
		req.Model = *common.Model
	}
	if common.Temperature != nil {
		t := float64(*common.Temperature)
		req.Temperature = &t
	}
	req.MaxTokens = common.MaxTokens
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		req.Messages = append(req.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	ctx, span := agentTracer.Start(ctx, "LLM.ChatCompletion", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.messages", len(req.Messages)),
		))
	defer span.End()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		errType := tracing.ErrorTypeLLM
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			errType = tracing.ErrorTypeTimeout
		}
		tracing.RecordError(span, err, errType)
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		tracing.RecordHTTPError(span, apiErr, resp.StatusCode)
		return nil, apiErr
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyChoices
	}

	choice := out.Choices[0]
	result := &schema.Message{Role: schema.Assistant}
	if choice.Message.Content != nil {
		result.Content = *choice.Message.Content
	}
	if choice.Message.Role != "" {
		result.Role = schema.RoleType(choice.Message.Role)
	}
	meta := &schema.ResponseMeta{FinishReason: choice.FinishReason}
	if out.Usage != nil {
		meta.Usage = &schema.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
		span.SetAttributes(attribute.Int("llm.total_tokens", out.Usage.TotalTokens))
	}
	result.ResponseMeta = meta

	m.logger.Debug().
		Str("model", req.Model).
		Dur("elapsed", time.Since(start)).
		Int("content_len", len(result.Content)).
		Msg("LLM调用完成")
	return result, nil
}

// Stream 不支持
func (m *ChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrStreamUnsupported
}

func float32Ptr(v float64) *float32 {
	f := float32(v)
	return &f
}
