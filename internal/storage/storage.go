package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"resume-agent-go/internal/config"
)

// Storage 聚合服务需要的存储依赖，可选组件初始化失败时降级
type Storage struct {
	Vectors   VectorStoreFactory
	Sessions  SessionStore
	Archive   UploadArchive // 未启用时为 nil
	Publisher EventPublisher

	logger zerolog.Logger
}

// NewStorage 按配置初始化。向量存储失败视为致命错误，其余组件失败只记录警告
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	s := &Storage{Publisher: NopPublisher{}, logger: logger}

	vectors, err := NewVectorStoreFactory(cfg.VectorStore, logger)
	if err != nil {
		return nil, err
	}
	s.Vectors = vectors

	s.Sessions = NewMemorySessionStore()
	if cfg.Redis.Enabled {
		client, err := NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis初始化失败, 会话改为保存在内存")
		} else if store, err := NewRedisSessionStore(client, &cfg.Redis); err == nil {
			s.Sessions = store
			logger.Info().Str("address", cfg.Redis.Address).Msg("会话存储使用Redis")
		}
	}

	if cfg.MinIO.Enabled {
		archive, err := NewMinIO(ctx, &cfg.MinIO, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("MinIO初始化失败, 跳过上传归档")
		} else {
			s.Archive = archive
		}
	}

	if cfg.RabbitMQ.Enabled {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("RabbitMQ初始化失败, 不发布分析事件")
		} else {
			s.Publisher = mq
		}
	}
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.Sessions != nil {
		if err := s.Sessions.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭会话存储失败")
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
}
