package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/session"
	"resume-agent-go/internal/types"
)

// Version 服务版本
const Version = "1.0.0"

// UserLister 列出已持久化向量存储的用户
type UserLister interface {
	ListUsers(ctx context.Context) ([]string, error)
}

// ResumeHandler 简历上传、分析与会话管理
type ResumeHandler struct {
	sessions *session.Manager
	users    UserLister
	logger   zerolog.Logger
	now      func() time.Time
}

// NewResumeHandler users 可为 nil，此时 /users 返回空列表
func NewResumeHandler(sessions *session.Manager, users UserLister, logger zerolog.Logger) *ResumeHandler {
	return &ResumeHandler{
		sessions: sessions,
		users:    users,
		logger:   logger.With().Str("component", "api").Logger(),
		now:      time.Now,
	}
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// UploadResponse 上传响应
type UploadResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// QueryRequest 分析与追问的请求体
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// AnalysisResponse 分析与追问的响应
type AnalysisResponse struct {
	SessionID string                   `json:"session_id"`
	Status    string                   `json:"status"`
	Answer    string                   `json:"answer"`
	Username  string                   `json:"username,omitempty"`
	GitHub    *types.GitHubAnalysis    `json:"github_analysis,omitempty"`
	LinkedIn  *types.LinkedInAnalysis  `json:"linkedin_analysis,omitempty"`
	History   []types.ConversationTurn `json:"conversation_history,omitempty"`
}

// SessionSummary /sessions 中的单个会话
type SessionSummary struct {
	Filename  string              `json:"filename"`
	Status    types.SessionStatus `json:"status"`
	Processed bool                `json:"processed"`
}

func writeError(c *app.RequestContext, code int, errName, message string) {
	c.JSON(code, ErrorResponse{Error: errName, Message: message})
}

// statusFor 把业务错误映射为HTTP状态码
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return consts.StatusNotFound, "Session not found"
	case errors.Is(err, session.ErrFileMissing):
		return consts.StatusNotFound, "Resume file not found. Please upload again."
	case errors.Is(err, session.ErrUnsupportedFile):
		return consts.StatusBadRequest, "Unsupported file type. Allowed: " + allowedExtensions()
	case errors.Is(err, session.ErrNotProcessed):
		return consts.StatusBadRequest, "Resume not yet analyzed. Please analyze first."
	case errors.Is(err, session.ErrEmptyQuery):
		return consts.StatusBadRequest, "Query must not be empty"
	default:
		return consts.StatusInternalServerError, "Internal server error"
	}
}

func allowedExtensions() string {
	return ".pdf, .txt, .docx, .md"
}

func (h *ResumeHandler) fail(c *app.RequestContext, err error) {
	code, msg := statusFor(err)
	if code == consts.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", string(c.Path())).Msg("请求处理失败")
	}
	writeError(c, code, msg, err.Error())
}

// Root GET /
func (h *ResumeHandler) Root(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"message": "AI Resume Analysis Agent API",
		"version": Version,
		"status":  "running",
	})
}

// Health GET /health
func (h *ResumeHandler) Health(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// UploadResume POST /upload-resume，multipart 字段 file
func (h *ResumeHandler) UploadResume(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, consts.StatusBadRequest, "File required", "multipart field 'file' is missing")
		return
	}
	if !parser.IsSupportedExtension(fileHeader.Filename) {
		h.fail(c, fmt.Errorf("%w: %s", session.ErrUnsupportedFile, fileHeader.Filename))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("打开上传文件失败: %w", err))
		return
	}
	defer file.Close()

	sess, err := h.sessions.Create(ctx, fileHeader.Filename, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(consts.StatusOK, UploadResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Message:   fmt.Sprintf("File '%s' uploaded successfully. Ready for analysis.", sess.Filename),
	})
}

func (h *ResumeHandler) bindQuery(c *app.RequestContext) (QueryRequest, bool) {
	var req QueryRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(c, consts.StatusBadRequest, "Invalid request body", err.Error())
		return req, false
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(c, consts.StatusBadRequest, "Session ID required", "session_id must not be empty")
		return req, false
	}
	return req, true
}

func analysisResponse(res *session.Result, withAnalysis bool) AnalysisResponse {
	status := "completed"
	if res.Status == types.SessionFailed {
		status = "failed"
	}
	resp := AnalysisResponse{
		SessionID: res.SessionID,
		Status:    status,
		Answer:    res.Answer,
		Username:  res.Username,
		History:   res.History,
	}
	if withAnalysis {
		resp.GitHub = res.GitHub
		resp.LinkedIn = res.LinkedIn
	}
	return resp
}

// AnalyzeResume POST /analyze-resume
func (h *ResumeHandler) AnalyzeResume(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}
	h.logger.Info().Str("session_id", req.SessionID).Msg("处理分析请求")
	res, err := h.sessions.Analyze(ctx, req.SessionID, req.Query)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(consts.StatusOK, analysisResponse(res, true))
}

// ContinueConversation POST /continue-conversation
func (h *ResumeHandler) ContinueConversation(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bindQuery(c)
	if !ok {
		return
	}
	res, err := h.sessions.ContinueConversation(ctx, req.SessionID, req.Query)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(consts.StatusOK, analysisResponse(res, false))
}

// GetSession GET /session/:id
func (h *ResumeHandler) GetSession(ctx context.Context, c *app.RequestContext) {
	sess, err := h.sessions.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(consts.StatusOK, sess)
}

// DeleteSession DELETE /session/:id
func (h *ResumeHandler) DeleteSession(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := h.sessions.Delete(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"message": fmt.Sprintf("Session %s deleted successfully", id)})
}

// ListSessions GET /sessions
func (h *ResumeHandler) ListSessions(ctx context.Context, c *app.RequestContext) {
	list, err := h.sessions.List(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make(map[string]SessionSummary, len(list))
	for _, s := range list {
		out[s.ID] = SessionSummary{Filename: s.Filename, Status: s.Status, Processed: s.Processed}
	}
	c.JSON(consts.StatusOK, utils.H{
		"active_sessions": len(list),
		"sessions":        out,
	})
}

// ListUsers GET /users
func (h *ResumeHandler) ListUsers(ctx context.Context, c *app.RequestContext) {
	users := []string{}
	if h.users != nil {
		found, err := h.users.ListUsers(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		users = append(users, found...)
	}
	c.JSON(consts.StatusOK, utils.H{"users": users, "count": len(users)})
}
