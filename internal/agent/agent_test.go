package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/types"
)

func TestNewChatModelRequiresKey(t *testing.T) {
	_, err := NewChatModel(config.LLMConfig{})
	require.Error(t, err)
}

func TestChatModelGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	m, err := NewChatModel(config.LLMConfig{APIKey: "sk-test", APIURL: srv.URL, Model: "gpt-test", Temperature: 0.2})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, schema.Assistant, msg.Role)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 4, msg.ResponseMeta.Usage.TotalTokens)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-6)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}, model.WithModel("other"))
	require.NoError(t, err)
	assert.Equal(t, "other", got.Model)
}

func TestChatModelErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()
	m, err := NewChatModel(config.LLMConfig{APIKey: "k", APIURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())

	status = http.StatusOK
	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, ErrEmptyChoices)

	_, err = m.Stream(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStreamUnsupported)
}

type captureModel struct {
	prompt string
	err    error
}

func (c *captureModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	c.prompt = msgs[0].Content
	if c.err != nil {
		return nil, c.err
	}
	return schema.AssistantMessage(" Alice knows Go. ", nil), nil
}

func (c *captureModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrStreamUnsupported
}

func TestAnswererBuildsPrompt(t *testing.T) {
	llm := &captureModel{}
	a := NewAnswerer(llm)
	answer, err := a.Answer(context.Background(), AnswerInput{
		Context:           "SKILLS\nGo, Rust",
		AdditionalContext: "\nGitHub Analysis: 1 links found, 1 profiles analyzed",
		History: []types.ConversationTurn{
			{User: "who?", Assistant: "Alice", Timestamp: time.Now()},
		},
		Query: "What languages?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice knows Go.", answer)
	assert.Contains(t, llm.prompt, "Resume Context:\nSKILLS\nGo, Rust")
	assert.Contains(t, llm.prompt, "Conversation History:\nUser: who?\nAssistant: Alice")
	assert.Contains(t, llm.prompt, "User Query: What languages?")
	assert.Contains(t, llm.prompt, `"`+NotAvailableAnswer+`"`)

	llm.err = errors.New("boom")
	_, err = a.Answer(context.Background(), AnswerInput{Query: "q"})
	assert.EqualError(t, err, "boom")
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "", FormatHistory(nil))
	assert.Equal(t, "User: a\nAssistant: b\nUser: c\nAssistant: d", FormatHistory([]types.ConversationTurn{
		{User: "a", Assistant: "b"}, {User: "c", Assistant: "d"},
	}))
}
