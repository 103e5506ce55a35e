package ratelimit

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

const (
	defaultQPM        = 30
	defaultMaxRetries = 3
)

// Temporary 可重试错误实现该接口
type Temporary interface {
	Temporary() bool
}

// IsRetryable 429/5xx (Temporary) 和网络超时重试，其余错误直接返回
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var t Temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RateLimitedLLMModel 对LLM模型的调用进行限流和重试的代理
type RateLimitedLLMModel struct {
	original      model.BaseChatModel
	limiter       *rate.Limiter
	retryWaitTime time.Duration
	maxRetries    int
}

var _ model.BaseChatModel = (*RateLimitedLLMModel)(nil)

// NewRateLimitedLLMModel qpm<=0 时使用默认值；桶容量为 QPM 的一半，允许一定突发
func NewRateLimitedLLMModel(original model.BaseChatModel, qpm int) *RateLimitedLLMModel {
	if qpm <= 0 {
		qpm = defaultQPM
	}
	burst := qpm / 2
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedLLMModel{
		original:      original,
		limiter:       rate.NewLimiter(rate.Limit(float64(qpm)/60.0), burst),
		retryWaitTime: time.Second,
		maxRetries:    defaultMaxRetries,
	}
}

// WithRetryPolicy 设置重试策略，waitTime 为首次退避间隔
func (rl *RateLimitedLLMModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedLLMModel {
	if waitTime > 0 {
		rl.retryWaitTime = waitTime
	}
	if maxRetries >= 0 {
		rl.maxRetries = maxRetries
	}
	return rl
}

func (rl *RateLimitedLLMModel) do(ctx context.Context, call func() error) error {
	op := func() (struct{}, error) {
		if err := rl.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := call()
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rl.retryWaitTime
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(rl.maxRetries+1)))
	return err
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	err := rl.do(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})
	return response, err
}

// Stream 代理Stream方法，只在建立流之前限流和重试
func (rl *RateLimitedLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]
	err := rl.do(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// NewLLMWithRateLimit 按模型名查找 QPM 上限 (取 90% 作为安全值)，找不到时使用 customQPM
func NewLLMWithRateLimit(original model.BaseChatModel, modelName string, cfg map[string]int, customQPM int, maxRetries int, retryWaitTime time.Duration) model.BaseChatModel {
	qpm := customQPM
	if cfg != nil && modelName != "" {
		if modelQPM, ok := cfg[modelName]; ok && modelQPM > 0 {
			qpm = int(float64(modelQPM) * 0.9)
		}
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return NewRateLimitedLLMModel(original, qpm).WithRetryPolicy(retryWaitTime, maxRetries)
}
