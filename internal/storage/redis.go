package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var redisTracer = otel.Tracer("resume-agent-go/storage/redis")

// RedisSessionStore 以 JSON 字符串保存会话，键为 KeyPrefix + session_id
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisClient 根据配置创建带 OpenTelemetry 钩子的客户端并检查连通性
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  config.Timeout(cfg.DialTimeoutSeconds, 5*time.Second),
		ReadTimeout:  config.Timeout(cfg.ReadTimeoutSeconds, 3*time.Second),
		WriteTimeout: config.Timeout(cfg.WriteTimeoutSeconds, 3*time.Second),
	})
	if err := redisotel.InstrumentTracing(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}

// NewRedisSessionStore 使用已连接的客户端创建会话存储
func NewRedisSessionStore(client *redis.Client, cfg *config.RedisConfig) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "resume_agent:session:"
	}
	return &RedisSessionStore{
		client:    client,
		keyPrefix: prefix,
		ttl:       time.Duration(cfg.SessionTTLHours) * time.Hour,
	}, nil
}

func (r *RedisSessionStore) buildKey(id string) string {
	return r.keyPrefix + id
}

func (r *RedisSessionStore) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return redisTracer.Start(ctx, "Redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemRedis,
			attribute.String("db.operation", op),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		))
}

// Save 覆盖写入会话并刷新过期时间
func (r *RedisSessionStore) Save(ctx context.Context, s *types.Session) error {
	key := r.buildKey(s.ID)
	ctx, span := r.startSpan(ctx, "SET", key)
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("保存会话 %s 失败: %w", s.ID, err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Get 会话不存在时返回 ErrSessionNotFound
func (r *RedisSessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	key := r.buildKey(id)
	ctx, span := r.startSpan(ctx, "GET", key)
	defer span.End()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetStatus(codes.Ok, "not found")
		return nil, ErrSessionNotFound
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("读取会话 %s 失败: %w", id, err)
	}
	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return nil, fmt.Errorf("解析会话 %s 失败: %w", id, err)
	}
	span.SetStatus(codes.Ok, "")
	return &s, nil
}

// Delete 不存在的会话返回 ErrSessionNotFound
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	key := r.buildKey(id)
	ctx, span := r.startSpan(ctx, "DEL", key)
	defer span.End()

	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("删除会话 %s 失败: %w", id, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// List 通过 SCAN 遍历前缀下的所有会话，按创建时间排序
func (r *RedisSessionStore) List(ctx context.Context) ([]*types.Session, error) {
	ctx, span := r.startSpan(ctx, "SCAN", r.keyPrefix+"*")
	defer span.End()

	var keys []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("扫描会话失败: %w", err)
	}

	sessions := make([]*types.Session, 0, len(keys))
	if len(keys) > 0 {
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			return nil, fmt.Errorf("批量读取会话失败: %w", err)
		}
		for _, v := range values {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var s types.Session
			if json.Unmarshal([]byte(str), &s) == nil {
				sessions = append(sessions, &s)
			}
		}
	}
	sortSessions(sessions)
	span.SetAttributes(attribute.Int("sessions.count", len(sessions)))
	span.SetStatus(codes.Ok, "")
	return sessions, nil
}

// Close 关闭底层客户端
func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}

func sortSessions(sessions []*types.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
