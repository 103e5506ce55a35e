package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/types"
)

// StorePrefix 每个用户的向量存储名称前缀 (目录名或集合名)
const StorePrefix = "resume_"

// ErrDimensionMismatch 向量维度与已有数据不一致
var ErrDimensionMismatch = errors.New("向量维度不匹配")

// StoreName 返回用户对应的存储名称
func StoreName(username string) string {
	return StorePrefix + username
}

// UsernameFromStore 从存储名称还原用户名，不是本系统的存储时返回 false
func UsernameFromStore(name string) (string, bool) {
	if !strings.HasPrefix(name, StorePrefix) || len(name) == len(StorePrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, StorePrefix), true
}

// VectorDocument 一个带向量的分块
type VectorDocument struct {
	ID      string
	Section types.Section
	Vector  []float64
}

// ScoredDocument 检索结果，Score 为余弦相似度
type ScoredDocument struct {
	Document VectorDocument
	Score    float64
}

// VectorStore 单个用户的向量存储
type VectorStore interface {
	// Count 已存储的分块数量
	Count(ctx context.Context) (int, error)
	// Add 写入分块，ID 相同则覆盖
	Add(ctx context.Context, docs []VectorDocument) error
	// Search 返回按相似度降序的前 k 个结果，结果包含向量
	Search(ctx context.Context, query []float64, k int) ([]ScoredDocument, error)
	// Location 存储位置，用于展示
	Location() string
	Close() error
}

// VectorStoreFactory 按用户名打开向量存储
type VectorStoreFactory interface {
	Open(ctx context.Context, username string) (VectorStore, error)
	// ListUsers 列出已持久化的用户
	ListUsers(ctx context.Context) ([]string, error)
}

// NewVectorStoreFactory 根据配置选择 sqlite 或 qdrant
func NewVectorStoreFactory(cfg config.VectorStoreConfig, logger zerolog.Logger) (VectorStoreFactory, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		return NewSQLiteStoreFactory(cfg.BaseDir, WithSQLiteLogger(logger)), nil
	case "qdrant":
		return NewQdrantFactory(&cfg.Qdrant)
	default:
		return nil, fmt.Errorf("未知的向量存储类型: %s", cfg.Type)
	}
}

// chunkID 同一用户同一分块的ID保持稳定，重复写入时覆盖
func chunkID(username string, s types.Section) string {
	return fmt.Sprintf("%s:%s:%d", username, s.Name, s.ChunkIndex)
}

// DocumentsFromSections 组装待写入的文档
func DocumentsFromSections(username string, sections []types.Section, vectors [][]float64) ([]VectorDocument, error) {
	if len(sections) != len(vectors) {
		return nil, fmt.Errorf("分块数量(%d)与向量数量(%d)不匹配", len(sections), len(vectors))
	}
	docs := make([]VectorDocument, len(sections))
	for i, s := range sections {
		docs[i] = VectorDocument{ID: chunkID(username, s), Section: s, Vector: vectors[i]}
	}
	return docs, nil
}
