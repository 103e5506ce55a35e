package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/types"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestClassifyURL(t *testing.T) {
	cases := []struct {
		url  string
		want types.GitHubURLInfo
	}{
		{"https://github.com/alice", types.GitHubURLInfo{Type: types.GitHubURLProfile, Username: "alice"}},
		{"github.com/alice/", types.GitHubURLInfo{Type: types.GitHubURLProfile, Username: "alice"}},
		{"https://github.com/alice?tab=repositories", types.GitHubURLInfo{Type: types.GitHubURLProfile, Username: "alice"}},
		{"https://github.com/alice/resume-agent", types.GitHubURLInfo{Type: types.GitHubURLRepository, Username: "alice", Repository: "resume-agent"}},
		{"https://GitHub.com/alice/my.repo/tree/main/src", types.GitHubURLInfo{Type: types.GitHubURLRepository, Username: "alice", Repository: "my.repo"}},
		{"https://gitlab.com/alice", types.GitHubURLInfo{Type: types.GitHubURLUnknown}},
		{"https://github.com/", types.GitHubURLInfo{Type: types.GitHubURLUnknown}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyURL(c.url), c.url)
	}
}

func TestLinksFromContact(t *testing.T) {
	contact := types.ContactInfo{
		GitHubProfiles: []string{"alice"},
		GitHubRepos:    []string{"alice/tool"},
		Links: map[types.LinkCategory][]string{
			types.LinkGitHub: {"https://github.com/alice/", "https://github.com/bob"},
		},
	}
	assert.Equal(t, []string{
		"https://github.com/alice/",
		"https://github.com/bob",
		"https://github.com/alice/tool",
	}, LinksFromContact(contact))
	assert.Empty(t, LinksFromContact(types.ContactInfo{}))
}

func TestActivityFromDays(t *testing.T) {
	assert.Equal(t, types.ActivityHigh, ActivityFromDays(2))
	assert.Equal(t, types.ActivityMedium, ActivityFromDays(10))
	assert.Equal(t, types.ActivityMedium, ActivityFromDays(20))
	assert.Equal(t, types.ActivityLow, ActivityFromDays(35))
	assert.Equal(t, types.ActivityNone, ActivityFromDays(50))
	assert.Equal(t, types.ActivityMedium, ActivityFromDays(3), "边界值属于下一档")
}

func TestComputeStatsSingleLanguage(t *testing.T) {
	repos := []types.GitHubRepository{
		{Name: "tool", Language: "Python", SizeKB: 400, Stars: 7, Forks: 2, OpenIssues: 1,
			PushedAt: fixedNow.Add(-48 * time.Hour)},
	}
	profile := &types.GitHubProfile{PublicRepos: 1, Followers: 10, Following: 3}
	st := ComputeStats(profile, repos, fixedNow)

	assert.Equal(t, map[string]int64{"Python": 409600}, st.LanguageBytes)
	require.Len(t, st.TopLanguages, 1)
	assert.Equal(t, 100.0, st.TopLanguages[0].Percent)
	assert.Equal(t, 1, st.TopLanguages[0].RepoCount)
	assert.Equal(t, types.ActivityHigh, st.ActivityLevel)
	require.NotNil(t, st.RecentPushActivityDays)
	assert.Equal(t, 2.0, *st.RecentPushActivityDays)
	assert.Equal(t, 7, st.TotalStars)
	assert.Equal(t, 10, st.Followers)
	assert.Equal(t, []string{"tool"}, st.RecentRepos)
}

func TestComputeStatsMixed(t *testing.T) {
	repos := []types.GitHubRepository{
		{Name: "a", Language: "Go", SizeKB: 100, PushedAt: fixedNow.Add(-30 * 24 * time.Hour)},
		{Name: "b", SizeKB: 300, IsArchived: true, PushedAt: fixedNow.Add(-20 * 24 * time.Hour)},
		{Name: "c", Language: "Go", SizeKB: 100},
	}
	st := ComputeStats(nil, repos, fixedNow)

	require.Len(t, st.TopLanguages, 2)
	assert.Equal(t, "Unknown", st.TopLanguages[0].Language)
	assert.Equal(t, 60.0, st.TopLanguages[0].Percent)
	assert.Equal(t, "Go", st.TopLanguages[1].Language)
	assert.Equal(t, 2, st.TopLanguages[1].RepoCount)
	assert.Equal(t, 1, st.ArchivedRepos)
	assert.Equal(t, types.ActivityMedium, st.ActivityLevel)
	assert.Equal(t, []string{"b", "a", "c"}, st.RecentRepos)

	empty := ComputeStats(nil, nil, fixedNow)
	assert.Nil(t, empty.RecentPushActivityDays)
	assert.Equal(t, types.ActivityNone, empty.ActivityLevel)
	assert.Empty(t, empty.TopLanguages)
}

// fakeGitHub 提供 /users/{u}、/users/{u}/repos、/repos/{o}/{r}
type fakeGitHub struct {
	repoCount  int
	failFirst  int32
	requests   int32
	authHeader atomic.Value
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&f.requests, 1)
	f.authHeader.Store(r.Header.Get("Authorization"))
	if n <= atomic.LoadInt32(&f.failFirst) {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.Header().Set("X-RateLimit-Remaining", "4999")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "users" && parts[1] == "alice":
		_, _ = w.Write([]byte(`{"login":"alice","name":"Alice Smith","public_repos":150,"followers":42,"following":7,"bio":null}`))
	case len(parts) == 3 && parts[0] == "users" && parts[2] == "repos":
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var repos []map[string]any
		for i := (page - 1) * perPage; i < page*perPage && i < f.repoCount; i++ {
			repos = append(repos, map[string]any{
				"name": fmt.Sprintf("repo%d", i), "language": "Go", "size": 10,
				"pushed_at": fixedNow.Add(-time.Duration(i+1) * time.Hour).Format(time.RFC3339),
				"license":   nil,
			})
		}
		if repos == nil {
			repos = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(repos)
	case len(parts) == 3 && parts[0] == "repos" && parts[1] == "alice" && parts[2] == "tool":
		_, _ = w.Write([]byte(`{"name":"tool","full_name":"alice/tool","stargazers_count":12,"language":"Rust","license":{"spdx_id":"MIT"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}
}

func newTestAnalyzer(t *testing.T, fake *fakeGitHub) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg := config.GitHubConfig{APIURL: srv.URL, Token: "ghp_test", RequestsPerSecond: 1000, Burst: 100, MaxRetries: 2}
	client := NewClient(cfg, WithInitialBackoff(time.Millisecond))
	return NewAnalyzer(client, cfg, WithClock(func() time.Time { return fixedNow }))
}

func TestAnalyzeLinks(t *testing.T) {
	fake := &fakeGitHub{repoCount: 8}
	a := newTestAnalyzer(t, fake)

	res := a.AnalyzeLinks(context.Background(), []string{
		"https://github.com/alice",
		"https://github.com/alice?tab=repositories",
		"https://github.com/alice/tool",
		"https://github.com/ghost",
		"https://example.com/nope",
	})

	assert.Equal(t, 5, res.Summary.TotalLinks)
	assert.Equal(t, 1, res.Summary.ProfilesFound)
	assert.Equal(t, 1, res.Summary.RepositoriesFound)
	assert.Equal(t, []string{"alice", "ghost"}, res.Summary.UniqueUsers)
	require.Len(t, res.Summary.Errors, 2)
	assert.Contains(t, res.Summary.Errors[0], "Profile error: ghost")
	assert.Equal(t, "Could not extract username from: https://example.com/nope", res.Summary.Errors[1])

	alice := res.Profiles["alice"]
	require.NotNil(t, alice)
	assert.Equal(t, "Alice Smith", alice.Profile.Name)
	assert.Len(t, alice.Repositories, 5, "每个 profile 只取最近5个仓库")
	assert.Equal(t, types.ActivityHigh, alice.Stats.ActivityLevel)

	tool := res.Repositories["alice/tool"]
	require.NotNil(t, tool)
	assert.Equal(t, "MIT", tool.License)
	assert.Equal(t, 12, tool.Stars)

	assert.Equal(t, "Bearer ghp_test", fake.authHeader.Load())

	report := Report("alice.pdf", res, fixedNow)
	assert.Contains(t, report, "• Profiles analyzed: 1")
	assert.Contains(t, report, "📁 alice/tool")
	assert.Contains(t, report, "⚠️ ERRORS ENCOUNTERED:")
}

func TestParseUserPaginates(t *testing.T) {
	a := newTestAnalyzer(t, &fakeGitHub{repoCount: 150})
	rep := a.ParseUser(context.Background(), "alice", 200)

	require.Empty(t, rep.Meta.Error)
	assert.Len(t, rep.Repositories, 150)
	require.NotNil(t, rep.Stats)
	assert.Equal(t, int64(150*10*1024), rep.Stats.LanguageBytes["Go"])
	require.NotNil(t, rep.Meta.RateLimitRemaining)
	assert.Equal(t, 4999, *rep.Meta.RateLimitRemaining)
	assert.Equal(t, fixedNow, rep.Meta.FetchedAt)

	limited := a.ParseUser(context.Background(), "alice", 120)
	assert.Len(t, limited.Repositories, 120)

	assert.Contains(t, UserReport(rep), "Rate limit remaining: 4999")
}

func TestParseUserNotFound(t *testing.T) {
	a := newTestAnalyzer(t, &fakeGitHub{})
	rep := a.ParseUser(context.Background(), "ghost", 0)
	assert.Equal(t, "User not found", rep.Meta.Error)
	assert.Nil(t, rep.Profile)
	assert.Empty(t, rep.Repositories)
	assert.Equal(t, "❌ ghost: User not found", UserReport(rep))
}

func TestClientRetriesServerErrors(t *testing.T) {
	fake := &fakeGitHub{failFirst: 2}
	a := newTestAnalyzer(t, fake)
	p, err := a.client.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.requests))

	fake = &fakeGitHub{failFirst: 10}
	a = newTestAnalyzer(t, fake)
	_, err = a.client.GetUser(context.Background(), "alice")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.requests), "最多重试2次")
}
