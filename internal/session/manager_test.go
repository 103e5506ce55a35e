package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/index"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/types"
	"resume-agent-go/internal/workflow"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeRunner 不访问任何外部服务，只模拟状态机结果
type fakeRunner struct {
	runs      int
	continues int
	fail      bool
}

func (f *fakeRunner) Run(_ context.Context, st *workflow.State) *workflow.State {
	f.runs++
	st.Username = "alice"
	if f.fail {
		st.Stage = workflow.StageFailed
		st.Err = errors.New("bad file")
		st.Answer = "❌ Error processing resume: bad file"
		return st
	}
	st.Index = &index.Hybrid{Username: "alice", Lexical: index.NewBM25(nil)}
	st.GitHub = &types.GitHubAnalysis{Profiles: map[string]*types.GitHubProfileAnalysis{"alice": {}}}
	st.LinkedIn = &types.LinkedInAnalysis{Found: false, Status: types.LinkedInNotProvided}
	return answer(st)
}

func (f *fakeRunner) Continue(_ context.Context, st *workflow.State, query string) *workflow.State {
	f.continues++
	st.Query = query
	return answer(st)
}

func answer(st *workflow.State) *workflow.State {
	st.Stage = workflow.StageDone
	st.Answer = "answer: " + st.Query
	st.History = append(st.History, types.ConversationTurn{User: st.Query, Assistant: st.Answer, Timestamp: fixedNow})
	return st
}

type recordingPublisher struct {
	msgs []storage.ResumeAnalyzedMessage
}

func (p *recordingPublisher) PublishAnalyzed(_ context.Context, msg storage.ResumeAnalyzedMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingArchive struct {
	archived []string
	removed  []string
}

func (a *recordingArchive) Archive(_ context.Context, sessionID, localPath string) (string, error) {
	a.archived = append(a.archived, localPath)
	return storage.ArchiveObjectKey(sessionID, localPath), nil
}

func (a *recordingArchive) Remove(_ context.Context, sessionID string) error {
	a.removed = append(a.removed, sessionID)
	return nil
}

func newTestManager(t *testing.T, runner Runner, opts ...Option) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "sess-1" }),
	}, opts...)
	return NewManager(storage.NewMemorySessionStore(), runner, dir, opts...), dir
}

func TestCreateSavesUpload(t *testing.T) {
	m, dir := newTestManager(t, &fakeRunner{})
	ctx := context.Background()

	sess, err := m.Create(ctx, "Alice_CV.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, types.SessionUploaded, sess.Status)
	assert.Equal(t, filepath.Join(dir, "sess-1", "Alice_CV.pdf"), sess.FilePath)
	data, err := os.ReadFile(sess.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = m.Create(ctx, "notes.rtf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAnalyzeThenContinue(t *testing.T) {
	runner := &fakeRunner{}
	pub := &recordingPublisher{}
	arc := &recordingArchive{}
	m, _ := newTestManager(t, runner, WithPublisher(pub), WithArchive(arc))
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice.txt", strings.NewReader("Alice"))
	require.NoError(t, err)

	_, err = m.ContinueConversation(ctx, sess.ID, "too early")
	assert.ErrorIs(t, err, ErrNotProcessed)

	res, err := m.Analyze(ctx, sess.ID, "skills?")
	require.NoError(t, err)
	assert.Equal(t, "answer: skills?", res.Answer)
	assert.Equal(t, types.SessionProcessed, res.Status)
	assert.Equal(t, "alice", res.Username)
	assert.NotNil(t, res.GitHub)

	res, err = m.ContinueConversation(ctx, sess.ID, "projects?")
	require.NoError(t, err)
	assert.Equal(t, "answer: projects?", res.Answer)
	assert.Len(t, res.History, 2)
	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, 1, runner.continues)

	stored, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Len(t, stored.History, 2)

	require.Len(t, pub.msgs, 1, "只在首次分析后发布事件")
	assert.Equal(t, []string{"alice"}, pub.msgs[0].GitHubProfiles)
	assert.Equal(t, "sess-1/alice.txt", pub.msgs[0].ArchiveObjectKey)
	assert.Len(t, arc.archived, 1)

	_, err = m.Analyze(ctx, sess.ID, "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = m.Analyze(ctx, "missing", "q")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyzeFailureMarksSession(t *testing.T) {
	m, _ := newTestManager(t, &fakeRunner{fail: true})
	ctx := context.Background()
	sess, err := m.Create(ctx, "alice.txt", strings.NewReader("Alice"))
	require.NoError(t, err)

	res, err := m.Analyze(ctx, sess.ID, "q")
	require.NoError(t, err)
	assert.Equal(t, types.SessionFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.Answer, "❌"))

	_, err = m.ContinueConversation(ctx, sess.ID, "q")
	assert.ErrorIs(t, err, ErrNotProcessed)
}

func TestRestoreAfterRestart(t *testing.T) {
	runner := &fakeRunner{}
	store := storage.NewMemorySessionStore()
	ctx := context.Background()
	first := NewManager(store, runner, t.TempDir(), WithIDGenerator(func() string { return "s" }))
	sess, err := first.Create(ctx, "alice.txt", strings.NewReader("Alice"))
	require.NoError(t, err)
	_, err = first.Analyze(ctx, sess.ID, "one")
	require.NoError(t, err)

	second := NewManager(store, runner, t.TempDir())
	res, err := second.ContinueConversation(ctx, sess.ID, "two")
	require.NoError(t, err)
	assert.Equal(t, 2, runner.runs, "新进程没有内存状态，重新执行流程")
	require.Len(t, res.History, 2)
	assert.Equal(t, "one", res.History[0].User)
}

func TestDeleteRemovesEverything(t *testing.T) {
	arc := &recordingArchive{}
	m, dir := newTestManager(t, &fakeRunner{}, WithArchive(arc))
	ctx := context.Background()
	sess, err := m.Create(ctx, "alice.md", strings.NewReader("# Alice"))
	require.NoError(t, err)
	_, err = m.Analyze(ctx, sess.ID, "q")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, sess.ID))
	_, err = os.Stat(filepath.Join(dir, sess.ID))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{sess.ID}, arc.removed)
	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, sess.ID), ErrNotFound)
}

func TestAnalyzeMissingFile(t *testing.T) {
	m, _ := newTestManager(t, &fakeRunner{})
	ctx := context.Background()
	sess, err := m.Create(ctx, "alice.txt", strings.NewReader("Alice"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(sess.FilePath))

	_, err = m.Analyze(ctx, sess.ID, "q")
	assert.ErrorIs(t, err, ErrFileMissing)
}
