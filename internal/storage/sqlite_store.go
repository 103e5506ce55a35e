package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var sqliteTracer = otel.Tracer("resume-agent-go/storage/sqlite")

const sqliteIndexFile = "index.db"

// SQLiteStoreFactory 在 baseDir/resume_<username>/index.db 下持久化向量
type SQLiteStoreFactory struct {
	baseDir string
	logger  zerolog.Logger
}

// SQLiteOption SQLiteStoreFactory 的配置选项
type SQLiteOption func(*SQLiteStoreFactory)

// WithSQLiteLogger 配置日志
func WithSQLiteLogger(l zerolog.Logger) SQLiteOption {
	return func(f *SQLiteStoreFactory) {
		f.logger = l.With().Str("component", "sqlite_vector_store").Logger()
	}
}

// NewSQLiteStoreFactory 创建本地向量存储工厂
func NewSQLiteStoreFactory(baseDir string, opts ...SQLiteOption) *SQLiteStoreFactory {
	if baseDir == "" {
		baseDir = "."
	}
	f := &SQLiteStoreFactory{baseDir: baseDir, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open 打开或创建用户的向量存储
func (f *SQLiteStoreFactory) Open(ctx context.Context, username string) (VectorStore, error) {
	dir := filepath.Join(f.baseDir, StoreName(username))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("创建向量存储目录 %s 失败: %w", dir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, sqliteIndexFile))
	if err != nil {
		return nil, fmt.Errorf("打开向量存储失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initChunkSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化向量存储表失败: %w", err)
	}
	return &SQLiteVectorStore{db: db, dir: dir, logger: f.logger}, nil
}

// ListUsers 扫描 baseDir 下包含索引文件的 resume_* 目录
func (f *SQLiteStoreFactory) ListUsers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("读取目录 %s 失败: %w", f.baseDir, err)
	}
	users := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, ok := UsernameFromStore(e.Name())
		if !ok {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.baseDir, e.Name(), sqliteIndexFile)); err != nil {
			continue
		}
		users = append(users, name)
	}
	sort.Strings(users)
	return users, nil
}

func initChunkSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		section      TEXT NOT NULL,
		chunk_index  INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		source       TEXT NOT NULL DEFAULT '',
		text         TEXT NOT NULL,
		metadata     TEXT NOT NULL DEFAULT '{}',
		dims         INTEGER NOT NULL,
		vector       BLOB NOT NULL
	)`)
	return err
}

// SQLiteVectorStore 本地向量存储，检索为全量余弦相似度计算
type SQLiteVectorStore struct {
	db     *sql.DB
	dir    string
	logger zerolog.Logger
}

// Location 返回存储目录
func (s *SQLiteVectorStore) Location() string { return s.dir }

// Close 关闭数据库
func (s *SQLiteVectorStore) Close() error { return s.db.Close() }

// Count 返回分块数量
func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计分块数量失败: %w", err)
	}
	return n, nil
}

// Add 在一个事务内写入分块
func (s *SQLiteVectorStore) Add(ctx context.Context, docs []VectorDocument) (err error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteVectorStore.Add",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", "insert"),
			attribute.Int("documents.count", len(docs)),
		))
	defer func() {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if len(docs) == 0 {
		return nil
	}
	dims := len(docs[0].Vector)
	for _, d := range docs {
		if len(d.Vector) != dims || dims == 0 {
			return fmt.Errorf("%w: 期望 %d, 实际 %d", ErrDimensionMismatch, dims, len(d.Vector))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks
		(id, section, chunk_index, total_chunks, source, text, metadata, dims, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		meta, mErr := json.Marshal(d.Section.Metadata)
		if mErr != nil {
			return fmt.Errorf("序列化分块元数据失败: %w", mErr)
		}
		if _, err = stmt.ExecContext(ctx, d.ID, string(d.Section.Name), d.Section.ChunkIndex,
			d.Section.TotalChunks, d.Section.Source, d.Section.Text, string(meta), dims, encodeVector(d.Vector)); err != nil {
			return fmt.Errorf("写入分块 %s 失败: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search 读取全部分块并按余弦相似度排序
func (s *SQLiteVectorStore) Search(ctx context.Context, query []float64, k int) ([]ScoredDocument, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteVectorStore.Search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", "search_vectors"),
			attribute.Int("search.limit", k),
		))
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT id, section, chunk_index, total_chunks, source, text, metadata, dims, vector FROM chunks ORDER BY rowid`)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("查询分块失败: %w", err)
	}
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var (
			d      VectorDocument
			name   string
			meta   string
			dims   int
			vector []byte
		)
		if err := rows.Scan(&d.ID, &name, &d.Section.ChunkIndex, &d.Section.TotalChunks,
			&d.Section.Source, &d.Section.Text, &meta, &dims, &vector); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return nil, fmt.Errorf("读取分块失败: %w", err)
		}
		if dims != len(query) {
			return nil, fmt.Errorf("%w: 查询 %d, 存储 %d", ErrDimensionMismatch, len(query), dims)
		}
		d.Section.Name = types.SectionName(name)
		if err := json.Unmarshal([]byte(meta), &d.Section.Metadata); err != nil {
			span.RecordError(err, trace.WithAttributes(attribute.String("chunk.id", d.ID)))
			s.logger.Warn().Err(err).Str("chunk_id", d.ID).Str("dir", s.dir).Msg("分块元数据解析失败, 使用空元数据")
			d.Section.Metadata = types.SectionMetadata{}
		}
		d.Vector = decodeVector(vector)
		results = append(results, ScoredDocument{Document: d, Score: CosineSimilarity(query, d.Vector)})
	}
	if err := rows.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	span.SetAttributes(attribute.Int("search.results.count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	v := make([]float64, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}

// CosineSimilarity 任一向量为零向量时返回 0
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
