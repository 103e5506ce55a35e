package processor

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
)

type stubLLM struct{}

func (stubLLM) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("ok", nil), nil
}

func (stubLLM) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func TestComponentsWithoutKeys(t *testing.T) {
	cfg := config.Default()
	c, err := NewComponents(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Nil(t, c.LLM)
	assert.Nil(t, c.Embedder)
	assert.NotNil(t, c.Loader)
	assert.NotNil(t, c.GitHub)
	assert.NotNil(t, c.LinkedIn)
	_, err = c.RequireWorkflow()
	assert.ErrorIs(t, err, ErrLLMUnavailable)

	users, err := c.Builder.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestComponentsWithInjectedLLM(t *testing.T) {
	cfg := config.Default()
	c, err := NewComponents(context.Background(), cfg, nil, zerolog.Nop(), WithcompLLM(stubLLM{}))
	require.NoError(t, err)

	w, err := c.RequireWorkflow()
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestComponentsRequireConfig(t *testing.T) {
	_, err := NewComponents(context.Background(), nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
