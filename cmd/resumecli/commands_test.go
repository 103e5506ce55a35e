package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/index"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/workflow"
)

const resume = `Jane Doe
jane@example.com | github.com/janedoe

SKILLS
Go, Rust, distributed systems, Kubernetes

EXPERIENCE
Senior engineer at Example Corp building storage services.
`

func newTestApp(t *testing.T, stdin string) (*app, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.VectorStore.BaseDir = t.TempDir()
	comp, err := processor.NewComponents(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	var out bytes.Buffer
	return &app{cfg: cfg, comp: comp, out: &out, in: strings.NewReader(stdin)}, &out
}

func writeResume(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jane_doe.txt")
	require.NoError(t, os.WriteFile(path, []byte(resume), 0o644))
	return path
}

func TestSegmentCommand(t *testing.T) {
	a, out := newTestApp(t, "")
	require.NoError(t, runSegment(context.Background(), a, []string{writeResume(t)}))
	assert.Contains(t, out.String(), "jane@example.com")
	assert.Contains(t, out.String(), "skills")
}

func TestExtractCommandSaves(t *testing.T) {
	a, out := newTestApp(t, "")
	save := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, runExtract(context.Background(), a, []string{"--maxlen", "10", "--save", save, writeResume(t)}))
	assert.Contains(t, out.String(), "已截断")
	data, err := os.ReadFile(save)
	require.NoError(t, err)
	assert.Equal(t, resume, string(data))
}

func TestArgumentErrors(t *testing.T) {
	a, _ := newTestApp(t, "")
	ctx := context.Background()
	assert.ErrorIs(t, runExtract(ctx, a, nil), errArgs)
	assert.ErrorIs(t, runGitHub(ctx, a, nil), errArgs)
	assert.ErrorIs(t, runLinkedIn(ctx, a, nil), errArgs)
	assert.ErrorIs(t, runAsk(ctx, a, []string{writeResume(t)}), processor.ErrLLMUnavailable)
}

func TestUsersCommandEmpty(t *testing.T) {
	a, out := newTestApp(t, "")
	require.NoError(t, runUsers(context.Background(), a, nil))
	assert.Contains(t, out.String(), "没有已持久化的用户")
}

type scriptedRunner struct{ queries []string }

func (s *scriptedRunner) Run(_ context.Context, st *workflow.State) *workflow.State {
	st.Index = &index.Hybrid{}
	return s.Continue(context.Background(), st, st.Query)
}

func (s *scriptedRunner) Continue(_ context.Context, st *workflow.State, q string) *workflow.State {
	s.queries = append(s.queries, q)
	st.Stage = workflow.StageDone
	st.Answer = "answer to " + q
	return st
}

func TestAskLoop(t *testing.T) {
	a, out := newTestApp(t, "\nprojects?\nexit\nignored\n")
	r := &scriptedRunner{}
	require.NoError(t, askLoop(context.Background(), a, r, "/tmp/jane.txt", "skills?"))
	assert.Equal(t, []string{"skills?", "projects?"}, r.queries)
	assert.Contains(t, out.String(), "answer to projects?")
}
