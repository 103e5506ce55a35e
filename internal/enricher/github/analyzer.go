package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

const reposPerPage = 100

// AnalyzerOption 配置 Analyzer
type AnalyzerOption func(*Analyzer)

// WithAnalyzerLogger 设置日志
func WithAnalyzerLogger(l zerolog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock 替换当前时间，用于计算活跃度
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer 分析简历中的 GitHub 链接
type Analyzer struct {
	client   *Client
	topRepos int
	maxRepos int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAnalyzer 创建分析器
func NewAnalyzer(client *Client, cfg config.GitHubConfig, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		client:   client,
		topRepos: cfg.TopRepos,
		maxRepos: cfg.MaxRepos,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	if a.topRepos <= 0 {
		a.topRepos = 5
	}
	if a.maxRepos <= 0 {
		a.maxRepos = 200
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeContact 从联系方式中收集链接后分析
func (a *Analyzer) AnalyzeContact(ctx context.Context, contact types.ContactInfo) *types.GitHubAnalysis {
	return a.AnalyzeLinks(ctx, LinksFromContact(contact))
}

// AnalyzeLinks 逐个分析链接。单个链接失败只记录到 Summary.Errors
func (a *Analyzer) AnalyzeLinks(ctx context.Context, links []string) *types.GitHubAnalysis {
	ctx, span := githubTracer.Start(ctx, "GitHub.AnalyzeLinks", trace.WithAttributes(attribute.Int("github.links", len(links))))
	defer span.End()

	result := &types.GitHubAnalysis{
		Links:        append([]string{}, links...),
		Profiles:     make(map[string]*types.GitHubProfileAnalysis),
		Repositories: make(map[string]*types.GitHubRepository),
		Summary: types.GitHubSummary{
			TotalLinks:  len(links),
			UniqueUsers: []string{},
			Errors:      []string{},
		},
	}
	seenUsers := make(map[string]bool)
	attempted := make(map[string]bool)

	for _, link := range links {
		info := ClassifyURL(link)
		if info.Username == "" {
			result.Summary.Errors = append(result.Summary.Errors, "Could not extract username from: "+link)
			continue
		}
		if !seenUsers[info.Username] {
			seenUsers[info.Username] = true
			result.Summary.UniqueUsers = append(result.Summary.UniqueUsers, info.Username)
		}

		switch info.Type {
		case types.GitHubURLRepository:
			key := info.Username + "/" + info.Repository
			if _, done := result.Repositories[key]; done {
				continue
			}
			repo, err := a.client.GetRepo(ctx, info.Username, info.Repository)
			if err != nil {
				result.Summary.Errors = append(result.Summary.Errors, fmt.Sprintf("Repository error: %s: %v", key, err))
				continue
			}
			result.Repositories[key] = repo
			result.Summary.RepositoriesFound++

		case types.GitHubURLProfile:
			if attempted[info.Username] {
				continue
			}
			attempted[info.Username] = true
			analysis, err := a.analyzeProfile(ctx, info.Username)
			if err != nil {
				result.Summary.Errors = append(result.Summary.Errors, fmt.Sprintf("Profile error: %s: %v", info.Username, err))
				continue
			}
			result.Profiles[info.Username] = analysis
			result.Summary.ProfilesFound++
		}
	}

	a.logger.Info().
		Int("links", result.Summary.TotalLinks).
		Int("profiles", result.Summary.ProfilesFound).
		Int("repositories", result.Summary.RepositoriesFound).
		Int("errors", len(result.Summary.Errors)).
		Msg("GitHub链接分析完成")
	return result
}

// analyzeProfile 拉取 profile 与最近更新的仓库，统计基于这些仓库
func (a *Analyzer) analyzeProfile(ctx context.Context, username string) (*types.GitHubProfileAnalysis, error) {
	profile, err := a.client.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	repos, err := a.client.ListRepos(ctx, username, a.topRepos, 1)
	if err != nil {
		a.logger.Warn().Err(err).Str("username", username).Msg("获取仓库列表失败")
		repos = []types.GitHubRepository{}
	}
	if len(repos) > a.topRepos {
		repos = repos[:a.topRepos]
	}
	return &types.GitHubProfileAnalysis{
		Profile:      *profile,
		Repositories: repos,
		Stats:        ComputeStats(profile, repos, a.now()),
	}, nil
}

// ParseUser 拉取 profile 和分页仓库并计算统计。maxRepos<=0 时使用配置值
func (a *Analyzer) ParseUser(ctx context.Context, username string, maxRepos int) *types.GitHubUserReport {
	if maxRepos <= 0 {
		maxRepos = a.maxRepos
	}
	ctx, span := githubTracer.Start(ctx, "GitHub.ParseUser", trace.WithAttributes(
		attribute.String("github.username", tracing.SafeAttributeValue("github.username", username, tracing.DefaultMaxLength)),
		attribute.Int("github.max_repos", maxRepos),
	))
	defer span.End()

	report := &types.GitHubUserReport{
		Repositories: []types.GitHubRepository{},
		Meta:         types.GitHubUserMeta{Username: username, FetchedAt: a.now().UTC()},
	}

	profile, err := a.client.GetUser(ctx, username)
	if errors.Is(err, ErrNotFound) {
		report.Meta.Error = "User not found"
		return report
	}
	if err != nil {
		report.Meta.Error = err.Error()
		report.Meta.ErrorCount = 1
		return report
	}
	report.Profile = profile

	pages := (maxRepos + reposPerPage - 1) / reposPerPage
	for page := 1; page <= pages; page++ {
		repos, err := a.client.ListRepos(ctx, username, reposPerPage, page)
		if err != nil {
			report.Meta.ErrorCount++
			a.logger.Warn().Err(err).Str("username", username).Int("page", page).Msg("分页获取仓库失败")
			break
		}
		report.Repositories = append(report.Repositories, repos...)
		if len(repos) < reposPerPage || len(report.Repositories) >= maxRepos {
			break
		}
	}
	if len(report.Repositories) > maxRepos {
		report.Repositories = report.Repositories[:maxRepos]
	}

	stats := ComputeStats(profile, report.Repositories, a.now())
	report.Stats = &stats
	report.Meta.RateLimitRemaining = a.client.RateLimitRemaining()
	return report
}
