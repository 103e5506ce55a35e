package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var qdrantTracer = otel.Tracer("resume-agent-go/storage/qdrant")

// QdrantPointIDNamespace 用于从分块ID生成确定性的 UUIDv5 点ID
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("6f1c7f0e-3b0d-4d51-9a53-2f6a3c5e9b27"))

// QdrantAPIError 非 2xx 响应
type QdrantAPIError struct {
	StatusCode int
	Body       string
}

func (e *QdrantAPIError) Error() string {
	return fmt.Sprintf("qdrant API error: status=%d, body=%s", e.StatusCode, e.Body)
}

func isQdrantNotFound(err error) bool {
	var apiErr *QdrantAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// QdrantOption 配置 Qdrant 客户端
type QdrantOption func(*qdrantClient)

// WithDistanceMetric 设置集合的距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(c *qdrantClient) {
		if metric != "" {
			c.distanceMetric = metric
		}
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(c *qdrantClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithQdrantHTTPClient 替换HTTP客户端
func WithQdrantHTTPClient(hc *http.Client) QdrantOption {
	return func(c *qdrantClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

type qdrantClient struct {
	endpoint       string
	apiKey         string
	distanceMetric string
	httpClient     *http.Client
}

// QdrantFactory 每个用户对应一个 resume_<username> 集合
type QdrantFactory struct {
	client *qdrantClient
}

// NewQdrantFactory 创建 Qdrant 向量存储工厂
func NewQdrantFactory(cfg *config.QdrantConfig, opts ...QdrantOption) (*QdrantFactory, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("qdrant endpoint 未配置")
	}
	c := &qdrantClient{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:         cfg.APIKey,
		distanceMetric: "Cosine",
		httpClient:     &http.Client{Timeout: config.Timeout(cfg.TimeoutSeconds, 30*time.Second)},
	}
	WithDistanceMetric(cfg.Distance)(c)
	for _, opt := range opts {
		opt(c)
	}
	return &QdrantFactory{client: c}, nil
}

// Open 返回用户集合的句柄，集合在首次写入时创建
func (f *QdrantFactory) Open(ctx context.Context, username string) (VectorStore, error) {
	return &QdrantVectorStore{client: f.client, collection: StoreName(username)}, nil
}

// ListUsers 列出所有 resume_ 前缀的集合
func (f *QdrantFactory) ListUsers(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := f.client.doRequest(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, fmt.Errorf("列出 qdrant 集合失败: %w", err)
	}
	users := []string{}
	for _, c := range resp.Result.Collections {
		if name, ok := UsernameFromStore(c.Name); ok {
			users = append(users, name)
		}
	}
	sort.Strings(users)
	return users, nil
}

// QdrantVectorStore 单个用户的 Qdrant 集合
type QdrantVectorStore struct {
	client     *qdrantClient
	collection string

	mu         sync.Mutex
	vectorSize int
}

// Location 返回集合地址
func (q *QdrantVectorStore) Location() string {
	return q.client.endpoint + "/collections/" + q.collection
}

// Close 无需释放资源
func (q *QdrantVectorStore) Close() error { return nil }

// ensureCollection 检查集合是否存在，不存在则按向量维度创建
func (q *QdrantVectorStore) ensureCollection(ctx context.Context, size int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.vectorSize > 0 {
		if q.vectorSize != size {
			return fmt.Errorf("%w: 集合 %d, 写入 %d", ErrDimensionMismatch, q.vectorSize, size)
		}
		return nil
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := q.client.doRequest(ctx, http.MethodGet, "/collections/"+q.collection, nil, &info)
	switch {
	case err == nil:
		existing := info.Result.Config.Params.Vectors.Size
		if existing != 0 && existing != size {
			return fmt.Errorf("%w: 集合 %d, 写入 %d", ErrDimensionMismatch, existing, size)
		}
	case isQdrantNotFound(err):
		body := map[string]any{
			"vectors": map[string]any{"size": size, "distance": q.client.distanceMetric},
		}
		if err := q.client.doRequest(ctx, http.MethodPut, "/collections/"+q.collection, body, nil); err != nil {
			return fmt.Errorf("创建集合 %s 失败: %w", q.collection, err)
		}
	default:
		return fmt.Errorf("检查集合 %s 失败: %w", q.collection, err)
	}
	q.vectorSize = size
	return nil
}

// Count 集合不存在时返回 0
func (q *QdrantVectorStore) Count(ctx context.Context) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "count_points"),
		attribute.String("db.collection", q.collection),
	)

	var result struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", q.collection),
		map[string]any{"exact": true}, &result)
	if isQdrantNotFound(err) {
		span.SetStatus(codes.Ok, "collection not found")
		return 0, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int("qdrant.points.count", result.Result.Count))
	span.SetStatus(codes.Ok, "")
	return result.Result.Count, nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Add 写入分块，点ID由分块ID确定
func (q *QdrantVectorStore) Add(ctx context.Context, docs []VectorDocument) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Upsert", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_vectors"),
		attribute.String("db.collection", q.collection),
		attribute.Int("points.count", len(docs)),
	)
	if len(docs) == 0 {
		span.SetStatus(codes.Ok, "no points")
		return nil
	}
	if err := q.ensureCollection(ctx, len(docs[0].Vector)); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	points := make([]qdrantPoint, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) != q.vectorSize {
			err := fmt.Errorf("%w: 期望 %d, 实际 %d", ErrDimensionMismatch, q.vectorSize, len(d.Vector))
			tracing.RecordError(span, err, tracing.ErrorTypeValidation)
			return err
		}
		points = append(points, qdrantPoint{
			ID:      uuid.NewV5(QdrantPointIDNamespace, d.ID).String(),
			Vector:  d.Vector,
			Payload: sectionPayload(d),
		})
	}

	err := q.client.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collection),
		map[string]any{"points": points}, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Search 返回带向量的相似结果，供 MMR 重排
func (q *QdrantVectorStore) Search(ctx context.Context, query []float64, k int) ([]ScoredDocument, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Search", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", q.collection),
		attribute.Int("search.limit", k),
	)
	if k <= 0 {
		k = 10
	}

	var result struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float64      `json:"vector"`
		} `json:"result"`
	}
	req := map[string]any{"vector": query, "limit": k, "with_payload": true, "with_vector": true}
	err := q.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), req, &result)
	if isQdrantNotFound(err) {
		return []ScoredDocument{}, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]ScoredDocument, 0, len(result.Result))
	for _, p := range result.Result {
		doc := documentFromPayload(p.Payload)
		doc.Vector = p.Vector
		if doc.ID == "" {
			doc.ID = p.ID
		}
		out = append(out, ScoredDocument{Document: doc, Score: p.Score})
	}
	span.SetAttributes(attribute.Int("search.results.count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func sectionPayload(d VectorDocument) map[string]any {
	meta, _ := json.Marshal(d.Section.Metadata)
	return map[string]any{
		"chunk_id":     d.ID,
		"section":      string(d.Section.Name),
		"chunk_index":  d.Section.ChunkIndex,
		"total_chunks": d.Section.TotalChunks,
		"source":       d.Section.Source,
		"text":         d.Section.Text,
		"metadata":     string(meta),
	}
}

func documentFromPayload(p map[string]any) VectorDocument {
	var d VectorDocument
	str := func(key string) string {
		s, _ := p[key].(string)
		return s
	}
	num := func(key string) int {
		f, _ := p[key].(float64)
		return int(f)
	}
	d.ID = str("chunk_id")
	d.Section.Name = types.SectionName(str("section"))
	d.Section.ChunkIndex = num("chunk_index")
	d.Section.TotalChunks = num("total_chunks")
	d.Section.Source = str("source")
	d.Section.Text = str("text")
	if m := str("metadata"); m != "" {
		_ = json.Unmarshal([]byte(m), &d.Section.Metadata)
	}
	return d
}

func (c *qdrantClient) doRequest(ctx context.Context, method, path string, body any, result any) error {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("net.peer.name", c.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		reader = bytes.NewReader(payload)
		span.SetAttributes(attribute.Int("http.request.body.size", len(payload)))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &QdrantAPIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode != http.StatusNotFound {
			tracing.RecordHTTPError(span, apiErr, resp.StatusCode)
		}
		return apiErr
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
