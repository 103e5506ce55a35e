package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
)

var rabbitTracer = otel.Tracer("resume-agent-go/storage/rabbitmq")

// ErrPublishNacked broker 拒绝了消息
var ErrPublishNacked = errors.New("message not acknowledged by broker")

// EventPublisher 发布分析事件
type EventPublisher interface {
	PublishAnalyzed(ctx context.Context, msg ResumeAnalyzedMessage) error
	Close() error
}

// NopPublisher 未启用消息队列时使用
type NopPublisher struct{}

func (NopPublisher) PublishAnalyzed(context.Context, ResumeAnalyzedMessage) error { return nil }
func (NopPublisher) Close() error                                                 { return nil }

// amqpHeaderCarrier 把 trace context 写入消息头
type amqpHeaderCarrier amqp.Table

func (c amqpHeaderCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c amqpHeaderCarrier) Set(key, value string) { c[key] = value }

func (c amqpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// RabbitMQ 单连接单通道的事件发布者
type RabbitMQ struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	mu         sync.Mutex
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

var _ EventPublisher = (*RabbitMQ)(nil)

// NewRabbitMQ 连接并声明 topic 类型的持久化交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明exchange %s 失败: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("开启发布确认失败: %w", err)
	}
	return &RabbitMQ{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.AnalyzedRoutingKey,
		logger:     logger.With().Str("component", "rabbitmq").Logger(),
	}, nil
}

// PublishAnalyzed 发布持久化 JSON 消息
func (r *RabbitMQ) PublishAnalyzed(ctx context.Context, msg ResumeAnalyzedMessage) error {
	ctx, span := rabbitTracer.Start(ctx, "RabbitMQ.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", r.exchange),
			attribute.String("messaging.rabbitmq.routing_key", r.routingKey),
			attribute.String("session.id", msg.SessionID),
		))
	defer span.End()

	body, err := json.Marshal(msg)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.TextMapCarrier(amqpHeaderCarrier(headers)))

	r.mu.Lock()
	defer r.mu.Unlock()
	dc, err := r.ch.PublishWithDeferredConfirmWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.SessionID,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return fmt.Errorf("发布消息失败: %w", err)
	}
	if dc != nil {
		if err := waitConfirm(ctx, dc); err != nil {
			tracing.RecordRabbitMQNack(span, msg.SessionID, err.Error())
			r.logger.Warn().Err(err).Str("session_id", msg.SessionID).Msg("分析事件未被broker确认")
			return err
		}
	}
	r.logger.Debug().Str("session_id", msg.SessionID).Msg("分析事件已发布")
	span.SetStatus(codes.Ok, "")
	return nil
}

// confirmation 由 *amqp.DeferredConfirmation 实现
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// waitConfirm broker 返回 nack 时返回 ErrPublishNacked
func waitConfirm(ctx context.Context, dc confirmation) error {
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("等待发布确认失败: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

// Close 关闭通道和连接
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}
