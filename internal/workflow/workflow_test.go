package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/agent"
	"resume-agent-go/internal/config"
	"resume-agent-go/internal/enricher/github"
	"resume-agent-go/internal/enricher/linkedin"
	"resume-agent-go/internal/index"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/types"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const resumeText = `Alice Smith
alice@example.com | github.com/alice

SUMMARY
Backend engineer who builds distributed systems and developer tooling in Go.

SKILLS
Go, Python, Kubernetes, PostgreSQL, gRPC, Redis

PROJECTS
resume-agent: retrieval augmented resume assistant written in Go with BM25 and MMR.
kvstore: replicated key value store using raft consensus.

EDUCATION
State University, BSc Computer Science, 2018
`

type recordingAnswerer struct {
	inputs []agent.AnswerInput
	err    error
}

func (r *recordingAnswerer) Answer(_ context.Context, in agent.AnswerInput) (string, error) {
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return "", r.err
	}
	return "answer " + in.Query, nil
}

type stubLoader struct {
	doc   *types.ResumeDocument
	err   error
	calls int
}

func (s *stubLoader) Load(context.Context, string) (*types.ResumeDocument, error) {
	s.calls++
	return s.doc, s.err
}

type stubBuilder struct{ calls int }

func (b *stubBuilder) Build(_ context.Context, username string, chunks []types.Section) (*index.Hybrid, error) {
	b.calls++
	return &index.Hybrid{Username: username, Lexical: index.NewBM25(chunks), Chunks: len(chunks)}, nil
}

type countingGitHub struct{ calls int }

func (c *countingGitHub) AnalyzeContact(context.Context, types.ContactInfo) *types.GitHubAnalysis {
	c.calls++
	return &types.GitHubAnalysis{Summary: types.GitHubSummary{TotalLinks: 2, ProfilesFound: 1}}
}

func textDoc() *types.ResumeDocument {
	return &types.ResumeDocument{Path: "alice.txt", Format: "txt", Text: resumeText}
}

func TestRunVisitsStagesInOrder(t *testing.T) {
	ans := &recordingAnswerer{}
	gh := &countingGitHub{}
	w := New(Deps{
		Loader:   &stubLoader{doc: textDoc()},
		Splitter: parser.NewSegmenter(),
		Builder:  &stubBuilder{},
		GitHub:   gh,
		Answerer: ans,
	}, WithClock(func() time.Time { return fixedNow }))

	st := w.Run(context.Background(), NewState("s1", "/tmp/alice.txt", "Kubernetes experience?"))
	assert.Equal(t, StageDone, st.Stage)
	assert.Equal(t, "alice", st.Username)
	assert.Equal(t, "answer Kubernetes experience?", st.Answer)
	assert.Equal(t, 1, gh.calls)
	require.Len(t, st.History, 1)
	assert.Equal(t, fixedNow, st.History[0].Timestamp)
	require.Len(t, ans.inputs, 1)
	assert.Equal(t, "\nGitHub Analysis: 2 links found, 1 profiles analyzed", ans.inputs[0].AdditionalContext)
	assert.Contains(t, ans.inputs[0].Context, "Kubernetes")
	assert.Nil(t, st.LinkedIn, "未配置 LinkedIn 时阶段直接通过")
}

func TestFailedStageStopsMachine(t *testing.T) {
	ans := &recordingAnswerer{}
	gh := &countingGitHub{}
	w := New(Deps{
		Loader:   &stubLoader{err: &parser.LoadError{Path: "x.rtf", Op: "load", Err: parser.ErrUnsupportedFormat}},
		Splitter: parser.NewSegmenter(),
		Builder:  &stubBuilder{},
		GitHub:   gh,
		Answerer: ans,
	})

	st := w.Run(context.Background(), NewState("s1", "x.rtf", "q"))
	assert.Equal(t, StageFailed, st.Stage)
	assert.True(t, strings.HasPrefix(st.Answer, "❌ Error processing resume: "), st.Answer)
	assert.ErrorIs(t, st.Err, ErrProcessResumeFailed)
	var se *StageError
	require.ErrorAs(t, st.Err, &se)
	assert.Equal(t, StageProcessResume, se.Stage)
	assert.Zero(t, gh.calls)
	assert.Empty(t, ans.inputs)

	again := w.Run(context.Background(), st)
	assert.Equal(t, StageFailed, again.Stage, "终态不再执行")
	assert.Zero(t, gh.calls)
}

func TestAnswerFailure(t *testing.T) {
	w := New(Deps{
		Loader:   &stubLoader{doc: textDoc()},
		Splitter: parser.NewSegmenter(),
		Builder:  &stubBuilder{},
		Answerer: &recordingAnswerer{err: errors.New("rate limited")},
	})
	st := w.Run(context.Background(), NewState("s1", "alice.txt", "q"))
	assert.Equal(t, StageFailed, st.Stage)
	assert.Equal(t, "❌ Error processing query: rate limited", st.Answer)
	assert.Empty(t, st.History)
}

func TestEmptyResumeFails(t *testing.T) {
	w := New(Deps{
		Loader:   &stubLoader{doc: &types.ResumeDocument{Text: "  \n"}},
		Splitter: parser.NewSegmenter(),
		Builder:  &stubBuilder{},
		Answerer: &recordingAnswerer{},
	})
	st := w.Run(context.Background(), NewState("s1", "empty.txt", "q"))
	assert.Equal(t, StageFailed, st.Stage)
	assert.ErrorIs(t, st.Err, ErrEmptyResume)
}

func TestContinueOnlyAnswers(t *testing.T) {
	loader := &stubLoader{doc: textDoc()}
	builder := &stubBuilder{}
	ans := &recordingAnswerer{}
	w := New(Deps{Loader: loader, Splitter: parser.NewSegmenter(), Builder: builder, Answerer: ans})

	st := w.Run(context.Background(), NewState("s1", "alice.txt", "first"))
	require.Equal(t, StageDone, st.Stage)

	st = w.Continue(context.Background(), st, "second")
	assert.Equal(t, StageDone, st.Stage)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, 1, builder.calls)
	require.Len(t, st.History, 2)
	assert.Equal(t, "second", st.History[1].User)
	assert.Len(t, ans.inputs[1].History, 1, "第二次提问带上历史")

	st.Index = nil
	st = w.Continue(context.Background(), st, "third")
	assert.Equal(t, 2, loader.calls, "没有索引时重新执行完整流程")

	missing := w.Continue(context.Background(), nil, "q")
	assert.Equal(t, StageFailed, missing.Stage)
	assert.ErrorIs(t, missing.Err, ErrNoSession)
}

func TestAdditionalContext(t *testing.T) {
	assert.Empty(t, AdditionalContext(nil, nil))
	li := &types.LinkedInAnalysis{Found: true, Profile: &types.LinkedInProfile{Name: "Alice"}}
	assert.Equal(t, "\nLinkedIn Profile: Alice - N/A", AdditionalContext(nil, li))
	assert.Empty(t, AdditionalContext(nil, &types.LinkedInAnalysis{Found: false}))
}

type keywordEmbedder struct{}

func (keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		l := strings.ToLower(t)
		out[i] = []float64{
			float64(strings.Count(l, "repositor")+strings.Count(l, "project")+strings.Count(l, "resume-agent")) + 0.1,
			float64(strings.Count(l, "university")) + 0.1,
			float64(strings.Count(l, "engineer")) + 0.1,
		}
	}
	return out, nil
}

func fakeGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/alice":
			_, _ = w.Write([]byte(`{"login":"alice","name":"Alice Smith","public_repos":2,"followers":5}`))
		case "/users/alice/repos":
			_, _ = w.Write([]byte(`[{"name":"resume-agent","language":"Go","size":100,"pushed_at":"2024-05-30T12:00:00Z"},
{"name":"kvstore","language":"Go","size":300,"pushed_at":"2024-05-01T12:00:00Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEndGitHubWithoutLinkedIn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alice_smith.txt")
	require.NoError(t, os.WriteFile(path, []byte(resumeText), 0o644))

	ctx := context.Background()
	loader, err := parser.NewLoader(ctx)
	require.NoError(t, err)

	ghSrv := fakeGitHubServer(t)
	ghCfg := config.GitHubConfig{APIURL: ghSrv.URL, RequestsPerSecond: 100, Burst: 10}
	ghAnalyzer := github.NewAnalyzer(github.NewClient(ghCfg), ghCfg, github.WithClock(func() time.Time { return fixedNow }))

	builder := index.NewBuilder(storage.NewSQLiteStoreFactory(filepath.Join(dir, "stores")), keywordEmbedder{})
	ans := &recordingAnswerer{}
	w := New(Deps{
		Loader:   loader,
		Splitter: parser.NewSegmenter(),
		Builder:  builder,
		GitHub:   ghAnalyzer,
		LinkedIn: linkedin.NewAnalyzer(nil, nil, nil),
		Answerer: ans,
	})

	st := w.Run(ctx, NewState("e2e", path, "What repositories does this candidate have?"))
	t.Cleanup(func() { _ = st.Close() })
	require.Equal(t, StageDone, st.Stage, st.Answer)
	assert.Equal(t, "alice_smith", st.Username)

	require.NotNil(t, st.GitHub)
	assert.GreaterOrEqual(t, st.GitHub.Summary.ProfilesFound, 1)
	require.Contains(t, st.GitHub.Profiles, "alice")

	require.NotNil(t, st.LinkedIn)
	assert.False(t, st.LinkedIn.Found)
	assert.Equal(t, "LinkedIn link not provided and none found in resume", st.LinkedIn.Message)

	require.NotNil(t, st.Index.Vector)
	assert.Contains(t, st.VectorStorePath(), "resume_alice_smith")
	var cited bool
	for _, s := range st.Retrieved {
		if s.Name == types.SectionProjects || s.Name == types.SectionSkills {
			cited = true
		}
	}
	assert.True(t, cited, "检索结果应包含 projects 或 skills 章节")
	require.Len(t, ans.inputs, 1)
	assert.Contains(t, ans.inputs[0].Context, "resume-agent")
	assert.Contains(t, ans.inputs[0].AdditionalContext, "profiles analyzed")

	users, err := builder.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice_smith"}, users)
}
