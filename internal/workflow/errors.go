package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrProcessResumeFailed = errors.New("处理简历失败")
	ErrEmptyResume         = errors.New("简历没有可用的文本内容")
	ErrIndexFailed         = errors.New("构建检索索引失败")
	ErrAnswerFailed        = errors.New("生成回答失败")
	ErrNoSession           = errors.New("没有可继续的会话")
)

// StageError 记录失败的阶段和会话
type StageError struct {
	SessionID string
	Stage     Stage
	BaseErr   error
	Detail    string
}

func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (阶段:%s, 会话:%s): %s", e.BaseErr, e.Stage, e.SessionID, e.Detail)
	}
	return fmt.Sprintf("%s (阶段:%s, 会话:%s)", e.BaseErr, e.Stage, e.SessionID)
}

func (e *StageError) Unwrap() error {
	return e.BaseErr
}

// Is 支持 errors.Is 按哨兵错误比较
func (e *StageError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newStageError(sessionID string, stage Stage, base error, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &StageError{SessionID: sessionID, Stage: stage, BaseErr: base, Detail: detail}
}

// failureMessage 面向用户的失败文本，带 ❌ 前缀
func failureMessage(stage Stage, err error) string {
	detail := err.Error()
	var se *StageError
	if errors.As(err, &se) && se.Detail != "" {
		detail = se.Detail
	}
	switch stage {
	case StageProcessResume:
		return "❌ Error processing resume: " + detail
	case StageRetrieveAndAnswer:
		return "❌ Error processing query: " + detail
	default:
		return fmt.Sprintf("❌ Error in %s: %s", stage, detail)
	}
}
