package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/agent"
	"resume-agent-go/internal/index"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var workflowTracer = otel.Tracer("resume-agent-go/workflow")

// Stage 状态机的阶段
type Stage string

const (
	StageProcessResume     Stage = "process_resume"
	StageAnalyzeGitHub     Stage = "analyze_github"
	StageAnalyzeLinkedIn   Stage = "analyze_linkedin"
	StageRetrieveAndAnswer Stage = "retrieve_and_answer"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// Terminal done 和 failed 之后不再执行任何阶段
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

var nextStage = map[Stage]Stage{
	StageProcessResume:     StageAnalyzeGitHub,
	StageAnalyzeGitHub:     StageAnalyzeLinkedIn,
	StageAnalyzeLinkedIn:   StageRetrieveAndAnswer,
	StageRetrieveAndAnswer: StageDone,
}

// DocumentLoader 读取简历文件
type DocumentLoader interface {
	Load(ctx context.Context, path string) (*types.ResumeDocument, error)
}

// SectionSplitter 切分章节并提取联系方式
type SectionSplitter interface {
	Split(doc *types.ResumeDocument) ([]types.Section, types.ContactInfo)
}

// IndexBuilder 构建混合检索索引
type IndexBuilder interface {
	Build(ctx context.Context, username string, chunks []types.Section) (*index.Hybrid, error)
}

// GitHubAnalyzer 分析联系方式中的 GitHub 链接
type GitHubAnalyzer interface {
	AnalyzeContact(ctx context.Context, contact types.ContactInfo) *types.GitHubAnalysis
}

// LinkedInAnalyzer 分析联系方式中的 LinkedIn 链接
type LinkedInAnalyzer interface {
	AnalyzeContact(ctx context.Context, contact types.ContactInfo) *types.LinkedInAnalysis
}

// QuestionAnswerer 根据检索上下文回答问题
type QuestionAnswerer interface {
	Answer(ctx context.Context, in agent.AnswerInput) (string, error)
}

// answererAdapter 适配 agent.Answerer 的可变参数签名
type answererAdapter struct{ a *agent.Answerer }

func (w answererAdapter) Answer(ctx context.Context, in agent.AnswerInput) (string, error) {
	return w.a.Answer(ctx, in)
}

// FromAgent 把 agent.Answerer 包装成 QuestionAnswerer
func FromAgent(a *agent.Answerer) QuestionAnswerer { return answererAdapter{a: a} }

// State 一次会话在各阶段之间传递的状态
type State struct {
	SessionID  string `json:"session_id"`
	ResumeFile string `json:"resume_file"`
	Username   string `json:"username"`
	Query      string `json:"user_query"`
	Stage      Stage  `json:"stage"`

	Document  *types.ResumeDocument    `json:"-"`
	Sections  []types.Section          `json:"-"`
	Contact   types.ContactInfo        `json:"contact_info"`
	Index     *index.Hybrid            `json:"-"`
	GitHub    *types.GitHubAnalysis    `json:"github_analysis,omitempty"`
	LinkedIn  *types.LinkedInAnalysis  `json:"linkedin_analysis,omitempty"`
	Retrieved []types.Section          `json:"-"`
	Answer    string                   `json:"final_answer"`
	History   []types.ConversationTurn `json:"conversation_history"`
	Err       error                    `json:"-"`
}

// NewState 从 process_resume 开始的新状态
func NewState(sessionID, resumeFile, query string) *State {
	return &State{
		SessionID:  sessionID,
		ResumeFile: resumeFile,
		Query:      query,
		Stage:      StageProcessResume,
		History:    []types.ConversationTurn{},
	}
}

// VectorStorePath 向量存储位置，没有向量索引时为空
func (s *State) VectorStorePath() string {
	if s.Index == nil || s.Index.Vector == nil {
		return ""
	}
	return s.Index.Vector.Location()
}

// Close 释放索引持有的存储
func (s *State) Close() error {
	if s.Index == nil {
		return nil
	}
	return s.Index.Close()
}

// Option 配置 Workflow
type Option func(*Workflow)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithParams 设置检索参数
func WithParams(p index.Params) Option {
	return func(w *Workflow) { w.params = p }
}

// WithClock 替换当前时间
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// Workflow 按固定顺序执行四个阶段
type Workflow struct {
	loader   DocumentLoader
	splitter SectionSplitter
	builder  IndexBuilder
	github   GitHubAnalyzer
	linkedin LinkedInAnalyzer
	answerer QuestionAnswerer
	params   index.Params
	logger   zerolog.Logger
	now      func() time.Time
}

// Deps Workflow 的依赖，GitHub 和 LinkedIn 可为 nil
type Deps struct {
	Loader   DocumentLoader
	Splitter SectionSplitter
	Builder  IndexBuilder
	GitHub   GitHubAnalyzer
	LinkedIn LinkedInAnalyzer
	Answerer QuestionAnswerer
}

// New 创建 Workflow
func New(deps Deps, opts ...Option) *Workflow {
	w := &Workflow{
		loader:   deps.Loader,
		splitter: deps.Splitter,
		builder:  deps.Builder,
		github:   deps.GitHub,
		linkedin: deps.LinkedIn,
		answerer: deps.Answerer,
		params:   index.DefaultParams(),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 从 state.Stage 开始执行直到 done 或 failed。
// 阶段出错时状态机进入 failed，错误文本写入 state.Answer。
func (w *Workflow) Run(ctx context.Context, state *State) *State {
	ctx, span := workflowTracer.Start(ctx, "Workflow.Run", trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.String("workflow.start_stage", string(state.Stage)),
		attribute.String("workflow.query", tracing.SafeQuery(state.Query)),
	))
	defer span.End()

	if state.Stage == "" {
		state.Stage = StageProcessResume
	}
	for !state.Stage.Terminal() {
		stage := state.Stage
		log := w.logger.With().Str("session_id", state.SessionID).Str("stage", string(stage)).Logger()
		log.Info().Msg("🔄 执行阶段")

		if err := w.step(ctx, stage, state); err != nil {
			state.Err = err
			state.Answer = failureMessage(stage, err)
			state.Stage = StageFailed
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
			log.Error().Err(err).Msg("阶段失败，终止流程")
			break
		}
		state.Stage = nextStage[stage]
		log.Info().Msg("✅ 阶段完成")
	}
	span.SetAttributes(attribute.String("workflow.end_stage", string(state.Stage)))
	return state
}

// Continue 已有索引时只执行 retrieve_and_answer，否则执行完整流程
func (w *Workflow) Continue(ctx context.Context, state *State, query string) *State {
	if state == nil {
		return &State{Stage: StageFailed, Err: ErrNoSession,
			Answer: "❌ No active session found. Please start with a resume file first."}
	}
	state.Query = query
	state.Answer = ""
	state.Err = nil
	if state.Index != nil {
		state.Stage = StageRetrieveAndAnswer
	} else {
		state.Stage = StageProcessResume
	}
	return w.Run(ctx, state)
}

func (w *Workflow) step(ctx context.Context, stage Stage, state *State) error {
	switch stage {
	case StageProcessResume:
		return w.processResume(ctx, state)
	case StageAnalyzeGitHub:
		if w.github != nil && state.Document != nil {
			state.GitHub = w.github.AnalyzeContact(ctx, state.Contact)
		}
		return nil
	case StageAnalyzeLinkedIn:
		if w.linkedin != nil && state.Document != nil {
			state.LinkedIn = w.linkedin.AnalyzeContact(ctx, state.Contact)
		}
		return nil
	case StageRetrieveAndAnswer:
		return w.retrieveAndAnswer(ctx, state)
	default:
		return fmt.Errorf("未知阶段: %s", stage)
	}
}

func (w *Workflow) processResume(ctx context.Context, state *State) error {
	if state.Username == "" {
		state.Username = parser.DeriveUsername(state.ResumeFile)
	}
	doc, err := w.loader.Load(ctx, state.ResumeFile)
	if err != nil {
		return newStageError(state.SessionID, StageProcessResume, ErrProcessResumeFailed, err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return newStageError(state.SessionID, StageProcessResume, ErrEmptyResume, ErrEmptyResume)
	}
	state.Document = doc
	state.Sections, state.Contact = w.splitter.Split(doc)

	if state.Index != nil {
		_ = state.Index.Close()
		state.Index = nil
	}
	h, err := w.builder.Build(ctx, state.Username, state.Sections)
	if err != nil {
		return newStageError(state.SessionID, StageProcessResume, ErrIndexFailed, err)
	}
	state.Index = h
	w.logger.Info().
		Str("username", state.Username).
		Int("sections", len(state.Sections)).
		Bool("vector", h.Vector != nil).
		Bool("reused", h.Reused).
		Msg("简历处理完成")
	return nil
}

// AdditionalContext GitHub 与 LinkedIn 的摘要行
func AdditionalContext(gh *types.GitHubAnalysis, li *types.LinkedInAnalysis) string {
	var b strings.Builder
	if gh != nil {
		fmt.Fprintf(&b, "\nGitHub Analysis: %d links found, %d profiles analyzed", gh.Summary.TotalLinks, gh.Summary.ProfilesFound)
	}
	if li != nil && li.Found && li.Profile != nil {
		name, headline := li.Profile.Name, li.Profile.Headline
		if name == "" {
			name = "N/A"
		}
		if headline == "" {
			headline = "N/A"
		}
		fmt.Fprintf(&b, "\nLinkedIn Profile: %s - %s", name, headline)
	}
	return b.String()
}

// RetrievalContext 检索结果按顺序以空行拼接
func RetrievalContext(sections []types.Section) string {
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Text
	}
	return strings.Join(texts, "\n\n")
}

func (w *Workflow) retrieveAndAnswer(ctx context.Context, state *State) error {
	state.Retrieved = nil
	if state.Index != nil {
		state.Retrieved = state.Index.Retrieve(ctx, state.Query, w.params, w.logger)
	}
	answer, err := w.answerer.Answer(ctx, agent.AnswerInput{
		Context:           RetrievalContext(state.Retrieved),
		AdditionalContext: AdditionalContext(state.GitHub, state.LinkedIn),
		History:           state.History,
		Query:             state.Query,
	})
	if err != nil {
		return newStageError(state.SessionID, StageRetrieveAndAnswer, ErrAnswerFailed, err)
	}
	state.Answer = answer
	state.History = append(state.History, types.ConversationTurn{
		User:      state.Query,
		Assistant: answer,
		Timestamp: w.now(),
	})
	return nil
}
