package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
)

var minioTracer = otel.Tracer("resume-agent-go/storage/minio")

// UploadArchive 上传简历的归档存储，本地副本仍是处理时的数据来源
type UploadArchive interface {
	// Archive 上传本地文件，返回对象键
	Archive(ctx context.Context, sessionID, localPath string) (string, error)
	// Remove 删除会话下的所有归档对象
	Remove(ctx context.Context, sessionID string) error
}

// MinIO 基于 MinIO/S3 的上传归档
type MinIO struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

var _ UploadArchive = (*MinIO)(nil)

// NewMinIO 创建客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}
	bucket := cfg.BucketName
	if bucket == "" {
		bucket = "resume-uploads"
	}
	m := &MinIO{client: client, bucket: bucket, logger: logger.With().Str("component", "minio").Logger()}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("创建存储桶 %s 失败: %w", bucket, err)
		}
		m.logger.Info().Str("bucket", bucket).Msg("存储桶已创建")
	}
	return m, nil
}

// ArchiveObjectKey 对象键格式为 <session_id>/<filename>
func ArchiveObjectKey(sessionID, localPath string) string {
	return sessionID + "/" + filepath.Base(localPath)
}

// Archive 上传本地文件
func (m *MinIO) Archive(ctx context.Context, sessionID, localPath string) (string, error) {
	key := ArchiveObjectKey(sessionID, localPath)
	ctx, span := minioTracer.Start(ctx, "MinIO.Archive",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("object_store.bucket", m.bucket),
			attribute.String("object_store.key", key),
		))
	defer span.End()

	f, err := os.Open(localPath)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", fmt.Errorf("打开待归档文件失败: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", err
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(filepath.Ext(localPath)),
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", fmt.Errorf("上传文件到MinIO失败: %w", err)
	}
	m.logger.Debug().Str("key", key).Int64("size", info.Size()).Msg("简历已归档")
	span.SetStatus(codes.Ok, "")
	return key, nil
}

// Remove 删除 <session_id>/ 前缀下的对象
func (m *MinIO) Remove(ctx context.Context, sessionID string) error {
	ctx, span := minioTracer.Start(ctx, "MinIO.Remove", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: sessionID + "/", Recursive: true}) {
		if obj.Err != nil {
			tracing.RecordError(span, obj.Err, tracing.ErrorTypeObjectStore)
			return fmt.Errorf("列出归档对象失败: %w", obj.Err)
		}
		if err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
			return fmt.Errorf("删除对象 %s 失败: %w", obj.Key, err)
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func contentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
