package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/types"
	"resume-agent-go/internal/workflow"
)

var (
	// ErrNotFound 会话不存在
	ErrNotFound = storage.ErrSessionNotFound
	// ErrUnsupportedFile 上传文件扩展名不受支持
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrNotProcessed 简历尚未分析，不能继续对话
	ErrNotProcessed = errors.New("resume has not been processed yet")
	// ErrEmptyQuery 问题为空
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrFileMissing 上传文件已不在本地
	ErrFileMissing = errors.New("resume file not found")
)

// Runner 执行分析流程
type Runner interface {
	Run(ctx context.Context, state *workflow.State) *workflow.State
	Continue(ctx context.Context, state *workflow.State, query string) *workflow.State
}

// Result 一次分析或追问的结果
type Result struct {
	SessionID string                   `json:"session_id"`
	Username  string                   `json:"username"`
	Status    types.SessionStatus      `json:"status"`
	Answer    string                   `json:"answer"`
	GitHub    *types.GitHubAnalysis    `json:"github_analysis,omitempty"`
	LinkedIn  *types.LinkedInAnalysis  `json:"linkedin_analysis,omitempty"`
	History   []types.ConversationTurn `json:"conversation_history"`
}

// Option 配置 Manager
type Option func(*Manager)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithArchive 分析成功后把上传文件归档
func WithArchive(a storage.UploadArchive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithPublisher 分析结束后发布事件
func WithPublisher(p storage.EventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithClock 替换当前时间
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator 替换会话ID生成
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// Manager 维护会话记录与进程内的工作流状态
type Manager struct {
	store     storage.SessionStore
	runner    Runner
	uploadDir string
	archive   storage.UploadArchive
	publisher storage.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string

	mu     sync.Mutex
	states map[string]*workflow.State
	locks  map[string]*sync.Mutex
}

// NewManager uploadDir 为空时使用 ./uploads
func NewManager(store storage.SessionStore, runner Runner, uploadDir string, opts ...Option) *Manager {
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	m := &Manager{
		store:     store,
		runner:    runner,
		uploadDir: uploadDir,
		publisher: storage.NopPublisher{},
		logger:    zerolog.Nop(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		states:    make(map[string]*workflow.State),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) state(id string) *workflow.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

func (m *Manager) setState(id string, st *workflow.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = st
}

// SessionDir 上传文件所在目录
func (m *Manager) SessionDir(id string) string {
	return filepath.Join(m.uploadDir, id)
}

// Create 保存上传文件并创建会话，文件存放在 <upload_dir>/<session_id>/<filename>
func (m *Manager) Create(ctx context.Context, filename string, content io.Reader) (*types.Session, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || !parser.IsSupportedExtension(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(name))
	}

	id := m.newID()
	dir := m.SessionDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建上传目录失败: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}

	now := m.now()
	sess := &types.Session{
		ID:        id,
		FilePath:  path,
		Filename:  name,
		Status:    types.SessionUploaded,
		History:   []types.ConversationTurn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}
	m.logger.Info().Str("session_id", id).Str("filename", name).Msg("简历已上传")
	return sess, nil
}

// Get 获取会话记录
func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	return m.store.Get(ctx, id)
}

// List 所有会话，按创建时间排序
func (m *Manager) List(ctx context.Context) ([]*types.Session, error) {
	return m.store.List(ctx)
}

// Analyze 对会话执行完整流程；已有索引的会话只执行问答
func (m *Manager) Analyze(ctx context.Context, id, query string) (*Result, error) {
	return m.run(ctx, id, query, false)
}

// ContinueConversation 追问，要求会话已经分析过
func (m *Manager) ContinueConversation(ctx context.Context, id, query string) (*Result, error) {
	return m.run(ctx, id, query, true)
}

func (m *Manager) run(ctx context.Context, id, query string, requireProcessed bool) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if requireProcessed && !sess.Processed {
		return nil, ErrNotProcessed
	}

	st := m.state(id)
	if st == nil {
		if _, err := os.Stat(sess.FilePath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, sess.Filename)
		}
	}
	switch {
	case st != nil:
		st = m.runner.Continue(ctx, st, query)
	case sess.Processed:
		// 进程重启后内存状态丢失，用持久化的记录恢复
		restored := workflow.NewState(id, sess.FilePath, query)
		restored.Username = sess.Username
		restored.History = append(restored.History, sess.History...)
		st = m.runner.Run(ctx, restored)
	default:
		sess.Status = types.SessionProcessing
		sess.UpdatedAt = m.now()
		if err := m.store.Save(ctx, sess); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("更新会话状态失败")
		}
		st = m.runner.Run(ctx, workflow.NewState(id, sess.FilePath, query))
	}
	m.setState(id, st)

	firstProcessing := !sess.Processed
	m.applyState(sess, st)
	if err := m.store.Save(ctx, sess); err != nil {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("保存会话失败")
	}
	if firstProcessing {
		m.afterFirstAnalysis(ctx, sess, st)
	}
	return &Result{
		SessionID: id,
		Username:  sess.Username,
		Status:    sess.Status,
		Answer:    st.Answer,
		GitHub:    st.GitHub,
		LinkedIn:  st.LinkedIn,
		History:   sess.History,
	}, nil
}

func (m *Manager) applyState(sess *types.Session, st *workflow.State) {
	sess.Username = st.Username
	sess.UpdatedAt = m.now()
	sess.History = append([]types.ConversationTurn{}, st.History...)
	if path := st.VectorStorePath(); path != "" {
		sess.VectorStorePath = path
	}
	if st.Stage == workflow.StageFailed && st.Index == nil {
		sess.Status = types.SessionFailed
		return
	}
	sess.Processed = true
	sess.Status = types.SessionProcessed
}

func (m *Manager) afterFirstAnalysis(ctx context.Context, sess *types.Session, st *workflow.State) {
	msg := storage.ResumeAnalyzedMessage{
		SessionID:     sess.ID,
		Username:      sess.Username,
		Filename:      sess.Filename,
		Status:        string(sess.Status),
		SectionCount:  len(st.Sections),
		VectorIndexed: st.VectorStorePath() != "",
		AnalyzedAt:    m.now(),
	}
	if st.GitHub != nil {
		for name := range st.GitHub.Profiles {
			msg.GitHubProfiles = append(msg.GitHubProfiles, name)
		}
		sort.Strings(msg.GitHubProfiles)
	}
	if st.LinkedIn != nil {
		msg.LinkedInFound = st.LinkedIn.Found
	}
	if st.Err != nil {
		msg.Error = st.Err.Error()
	}

	if m.archive != nil && sess.Processed {
		key, err := m.archive.Archive(ctx, sess.ID, sess.FilePath)
		if err != nil {
			m.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("归档上传文件失败")
		} else {
			msg.ArchiveObjectKey = key
		}
	}
	if err := m.publisher.PublishAnalyzed(ctx, msg); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("发布分析事件失败")
	}
}

// Delete 删除会话记录、上传目录和归档
func (m *Manager) Delete(ctx context.Context, id string) error {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	if st := m.state(id); st != nil {
		if err := st.Close(); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("关闭向量存储失败")
		}
	}
	m.mu.Lock()
	delete(m.states, id)
	delete(m.locks, id)
	m.mu.Unlock()

	if err := os.RemoveAll(m.SessionDir(id)); err != nil {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("删除上传目录失败")
	}
	if m.archive != nil {
		if err := m.archive.Remove(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("删除归档失败")
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info().Str("session_id", id).Msg("会话已删除")
	return nil
}

// Close 释放所有会话持有的索引
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range m.states {
		if err := st.Close(); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("关闭向量存储失败")
		}
	}
	m.states = make(map[string]*workflow.State)
}
