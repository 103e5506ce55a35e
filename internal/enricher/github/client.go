package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var githubTracer = otel.Tracer("resume-agent-go/enricher/github")

// ErrNotFound 用户或仓库不存在
var ErrNotFound = errors.New("github: not found")

// APIError 不可重试的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github API error %d", e.StatusCode)
}

// ClientOption 配置 Client
type ClientOption func(*Client)

// WithHTTPClient 替换HTTP客户端
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger 设置日志
func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithInitialBackoff 设置首次重试间隔
func WithInitialBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.initialBackoff = d }
}

// Client GitHub REST API 客户端，带客户端限流和 5xx/429 重试
type Client struct {
	baseURL        string
	token          string
	http           *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	logger         zerolog.Logger

	mu            sync.Mutex
	rateRemaining *int
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.GitHubConfig, opts ...ClientOption) *Client {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = "https://api.github.com"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	c := &Client{
		baseURL:        base,
		token:          cfg.Token,
		http:           &http.Client{Timeout: config.Timeout(cfg.TimeoutSeconds, 15*time.Second)},
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries:     retries,
		initialBackoff: 500 * time.Millisecond,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RateLimitRemaining 最近一次响应中的 X-RateLimit-Remaining
func (c *Client) RateLimitRemaining() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateRemaining == nil {
		return nil
	}
	v := *c.rateRemaining
	return &v
}

func (c *Client) recordRateLimit(h http.Header) {
	v, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	c.mu.Lock()
	c.rateRemaining = &v
	c.mu.Unlock()
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// getJSON 发送 GET 请求并解析JSON，404 返回 ErrNotFound
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, span := githubTracer.Start(ctx, "GitHub.GET", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodGet),
			attribute.String("http.url", tracing.SafeURL(c.baseURL+path)),
		))
	defer span.End()

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.http.Do(req)
		if err != nil {
			// 网络错误可重试，context 取消则不再重试
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		defer resp.Body.Close()
		c.recordRateLimit(resp.Header)
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return struct{}{}, backoff.Permanent(ErrNotFound)
		case isRetryableStatus(resp.StatusCode):
			c.logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt).Str("path", path).Msg("GitHub请求失败, 准备重试")
			return struct{}{}, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return struct{}{}, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Message: apiMessage(body)})
		}
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("解析GitHub响应失败: %w", err))
			}
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = 10 * time.Second
	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(c.maxRetries+1)))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		}
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func apiMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && m.Message != "" {
		return m.Message
	}
	return tracing.TruncateString(string(body), 200)
}

type apiUser struct {
	Login           string    `json:"login"`
	Name            string    `json:"name"`
	Bio             string    `json:"bio"`
	Company         string    `json:"company"`
	Location        string    `json:"location"`
	Email           string    `json:"email"`
	Blog            string    `json:"blog"`
	TwitterUsername string    `json:"twitter_username"`
	PublicRepos     int       `json:"public_repos"`
	Followers       int       `json:"followers"`
	Following       int       `json:"following"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	HTMLURL         string    `json:"html_url"`
}

type apiRepo struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	Topics          []string  `json:"topics"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	WatchersCount   int       `json:"watchers_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	Size            int       `json:"size"`
	Private         bool      `json:"private"`
	Fork            bool      `json:"fork"`
	Archived        bool      `json:"archived"`
	DefaultBranch   string    `json:"default_branch"`
	HTMLURL         string    `json:"html_url"`
	CloneURL        string    `json:"clone_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`
	License         *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

func (u apiUser) normalize() *types.GitHubProfile {
	return &types.GitHubProfile{
		Username:        u.Login,
		Name:            u.Name,
		Bio:             u.Bio,
		Company:         u.Company,
		Location:        u.Location,
		Email:           u.Email,
		Blog:            u.Blog,
		TwitterUsername: u.TwitterUsername,
		PublicRepos:     u.PublicRepos,
		Followers:       u.Followers,
		Following:       u.Following,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
		ProfileURL:      u.HTMLURL,
	}
}

func (r apiRepo) normalize() types.GitHubRepository {
	repo := types.GitHubRepository{
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		Language:      r.Language,
		Topics:        r.Topics,
		Stars:         r.StargazersCount,
		Forks:         r.ForksCount,
		Watchers:      r.WatchersCount,
		OpenIssues:    r.OpenIssuesCount,
		SizeKB:        r.Size,
		IsPrivate:     r.Private,
		IsFork:        r.Fork,
		IsArchived:    r.Archived,
		DefaultBranch: r.DefaultBranch,
		URL:           r.HTMLURL,
		CloneURL:      r.CloneURL,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		PushedAt:      r.PushedAt,
	}
	if r.License != nil {
		repo.License = r.License.SPDXID
	}
	return repo
}

// GetUser GET /users/{username}
func (c *Client) GetUser(ctx context.Context, username string) (*types.GitHubProfile, error) {
	var u apiUser
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(username), &u); err != nil {
		return nil, err
	}
	return u.normalize(), nil
}

// ListRepos GET /users/{username}/repos，按更新时间降序
func (c *Client) ListRepos(ctx context.Context, username string, perPage, page int) ([]types.GitHubRepository, error) {
	q := url.Values{}
	q.Set("sort", "updated")
	q.Set("direction", "desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	var raw []apiRepo
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(username)+"/repos?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	repos := make([]types.GitHubRepository, len(raw))
	for i, r := range raw {
		repos[i] = r.normalize()
	}
	return repos, nil
}

// GetRepo GET /repos/{owner}/{repo}
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*types.GitHubRepository, error) {
	var r apiRepo
	if err := c.getJSON(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(repo), &r); err != nil {
		return nil, err
	}
	out := r.normalize()
	return &out, nil
}
