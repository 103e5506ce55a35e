package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-agent-go/internal/types"
)

// NotAvailableAnswer 上下文中没有相关信息时模型应给出的原话
const NotAvailableAnswer = "This information is not available in the provided resume/profile data"

const answerTemplate = `You are an AI assistant specializing in resume analysis and professional profile assessment.

Resume Context:
%s

Additional Profile Information:
%s

Conversation History:
%s

User Query: %s

Instructions:
1. Answer the user's query based on the provided resume content and profile information
2. Be specific and cite relevant information from the resume/profiles
3. If the information doesn't exist in the provided context, clearly state "` + NotAvailableAnswer + `"
4. Provide helpful insights and analysis when possible
5. Keep responses concise but comprehensive

Answer:`

// AnswerInput 组装提示词所需的全部内容
type AnswerInput struct {
	Context           string
	AdditionalContext string
	History           []types.ConversationTurn
	Query             string
}

// FormatHistory 每轮两行 User/Assistant
func FormatHistory(turns []types.ConversationTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "User: "+t.User+"\nAssistant: "+t.Assistant)
	}
	return strings.Join(lines, "\n")
}

// BuildAnswerPrompt 填充固定模板
func BuildAnswerPrompt(in AnswerInput) string {
	return fmt.Sprintf(answerTemplate, in.Context, in.AdditionalContext, FormatHistory(in.History), in.Query)
}

// Answerer 基于检索上下文回答问题
type Answerer struct {
	llm model.BaseChatModel
}

// NewAnswerer 创建 Answerer
func NewAnswerer(llm model.BaseChatModel) *Answerer {
	return &Answerer{llm: llm}
}

// Answer 返回模型输出，去掉首尾空白
func (a *Answerer) Answer(ctx context.Context, in AnswerInput, opts ...model.Option) (string, error) {
	msg, err := a.llm.Generate(ctx, []*schema.Message{schema.UserMessage(BuildAnswerPrompt(in))}, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}
