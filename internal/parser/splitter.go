package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// DefaultSeparators 从段落到单个字符逐级尝试
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// RecursiveSplitter 递归字符分块器，基于 eino-ext recursive transformer。
// 分隔符保留在下一片段开头，长度按字符 (rune) 计算。
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int

	transformer document.Transformer
}

// NewRecursiveSplitter 创建分块器，chunkSize<=0 时使用 400，非法的重叠置 0
func NewRecursiveSplitter(chunkSize, chunkOverlap int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		chunkSize = 400
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	t, err := recursive.NewSplitter(context.Background(), &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: chunkOverlap,
		Separators:  DefaultSeparators,
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeStart,
	})
	if err != nil {
		return nil, fmt.Errorf("创建递归分块器失败: %w", err)
	}
	return &RecursiveSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, transformer: t}, nil
}

func mustRecursiveSplitter(chunkSize, chunkOverlap int) *RecursiveSplitter {
	s, err := NewRecursiveSplitter(chunkSize, chunkOverlap)
	if err != nil {
		panic(err)
	}
	return s
}

// Split 返回去除首尾空白后的非空分块
func (s *RecursiveSplitter) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	docs, err := s.transformer.Transform(ctx, []*schema.Document{{ID: "section", Content: text}})
	if err != nil {
		return nil, fmt.Errorf("文本分块失败: %w", err)
	}
	chunks := make([]string, 0, len(docs))
	for _, d := range docs {
		if c := strings.TrimSpace(d.Content); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
