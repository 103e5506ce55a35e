package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var loaderTracer = otel.Tracer("resume-agent-go/parser/loader")

// SupportedExtensions 允许上传和加载的扩展名
var SupportedExtensions = map[string]types.DocumentFormat{
	".pdf":  types.FormatPDF,
	".txt":  types.FormatTXT,
	".md":   types.FormatMD,
	".docx": types.FormatDOCX,
}

// IsSupportedExtension 扩展名大小写不敏感
func IsSupportedExtension(name string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Loader 将简历文件读成文本，PDF 额外提取超链接
type Loader struct {
	pdf    PDFTextExtractor
	logger zerolog.Logger
}

// LoaderOption Loader 的配置选项
type LoaderOption func(*Loader)

// WithPDFExtractor 替换默认的 Eino PDF 提取器
func WithPDFExtractor(e PDFTextExtractor) LoaderOption {
	return func(l *Loader) {
		l.pdf = e
	}
}

// WithLoaderLogger 配置日志
func WithLoaderLogger(lg zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = lg
	}
}

// NewLoader 创建 Loader，未指定 PDF 提取器时使用 Eino
func NewLoader(ctx context.Context, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		logger: logger.Logger.With().Str("component", "loader").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pdf == nil {
		extractor, err := NewEinoPDFTextExtractor(ctx, WithEinoLogger(l.logger))
		if err != nil {
			return nil, err
		}
		l.pdf = extractor
	}
	return l, nil
}

// Load 读取简历。输入类错误 (格式/不存在/内容为空) 以 *LoadError 返回。
func (l *Loader) Load(ctx context.Context, path string) (*types.ResumeDocument, error) {
	ctx, span := loaderTracer.Start(ctx, "Loader.Load")
	defer span.End()
	span.SetAttributes(attribute.String("resume.file", tracing.MaskPII(filepath.Base(path))))

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = newLoadError(path, "stat", ErrFileNotFound, "")
		} else {
			err = newLoadError(path, "stat", err, "")
		}
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	format, ok := SupportedExtensions[ext]
	if !ok {
		err := newLoadError(path, "detect", ErrUnsupportedFormat, "支持: .pdf, .txt, .md, .docx, 实际: "+ext)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	doc := &types.ResumeDocument{Path: path, Format: format}
	var err error
	switch format {
	case types.FormatPDF:
		doc.Text, err = l.loadPDF(ctx, path)
		if err == nil {
			doc.Hyperlinks = l.pdfLinks(path)
		}
	case types.FormatDOCX:
		doc.Text, err = extractDocxText(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		doc.Text = strings.ToValidUTF8(string(data), "")
	}
	if err != nil {
		err = newLoadError(path, "extract", err, "")
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return nil, err
	}

	if strings.TrimSpace(doc.Text) == "" {
		err := newLoadError(path, "extract", ErrEmptyContent, "")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("resume.format", string(format)),
		attribute.Int("resume.chars", len(doc.Text)),
		attribute.Int("resume.hyperlinks", len(doc.Hyperlinks)),
	)
	l.logger.Info().
		Str("file", filepath.Base(path)).
		Str("format", string(format)).
		Int("chars", len(doc.Text)).
		Int("hyperlinks", len(doc.Hyperlinks)).
		Msg("简历加载完成")
	return doc, nil
}

func (l *Loader) loadPDF(ctx context.Context, path string) (string, error) {
	text, err := l.pdf.ExtractFromFile(ctx, path)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Eino PDF解析失败，尝试备用解析")
	}
	fallback, ferr := plainTextFromPDF(path)
	if ferr != nil {
		if err != nil {
			return "", err
		}
		return text, nil
	}
	return fallback, nil
}

func (l *Loader) pdfLinks(path string) []types.Hyperlink {
	links, err := ExtractPDFHyperlinks(path)
	if err != nil {
		l.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("无法提取PDF超链接，按无链接处理")
		return nil
	}
	return links
}
