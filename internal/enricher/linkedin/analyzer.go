package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

const (
	accessDeniedError   = "LinkedIn access denied"
	accessDeniedMessage = "Cannot parse LinkedIn profile due to access restrictions"
	accessDeniedSummary = "LinkedIn profile analysis unavailable due to access restrictions."
	notProvidedMessage  = "LinkedIn link not provided and none found in resume"
)

const summaryPrompt = `You are an expert HR analyst. Analyze the following LinkedIn profile data and provide a comprehensive professional summary.

LinkedIn Profile Data:
%s

Please provide a detailed analysis including:
1. **Professional Overview**: Current role, experience level, and career focus
2. **Technical Skills**: Key technical competencies and expertise areas
3. **Experience Highlights**: Notable positions, companies, and achievements
4. **Education & Qualifications**: Academic background and certifications
5. **Professional Network**: Connection strength and industry presence
6. **Career Trajectory**: Growth pattern and career progression
7. **Recommendations**: Suitability for different roles or opportunities

Format the response in a clear, professional manner suitable for HR review.
If certain information is not available, note it appropriately.`

// Option 配置 Analyzer
type Option func(*Analyzer)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithScrapers 替换抓取链，按顺序尝试
func WithScrapers(s ...Scraper) Option {
	return func(a *Analyzer) { a.scrapers = s }
}

// WithNow 替换时钟
func WithNow(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer 抓取 LinkedIn profile 并生成 HR 摘要
type Analyzer struct {
	scrapers []Scraper
	llm      model.BaseChatModel
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAnalyzer llm 为 nil 时成功抓取后不生成摘要
func NewAnalyzer(brightData *BrightDataScraper, basic *BasicScraper, llm model.BaseChatModel, opts ...Option) *Analyzer {
	a := &Analyzer{llm: llm, logger: zerolog.Nop(), now: time.Now}
	if brightData != nil {
		a.scrapers = append(a.scrapers, brightData)
	}
	if basic != nil {
		a.scrapers = append(a.scrapers, basic)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Scrape 依次尝试抓取方式，全部失败时返回最后一个错误
func (a *Analyzer) Scrape(ctx context.Context, url string) (*types.LinkedInProfile, error) {
	var lastErr error = &ScrapeError{Method: "none", Message: "no scraping method configured"}
	for _, s := range a.scrapers {
		p, err := s.Scrape(ctx, url)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNoToken) {
			a.logger.Warn().Err(err).Str("url", tracing.SafeURL(url)).Msg("LinkedIn抓取失败，尝试下一种方式")
		}
		lastErr = err
	}
	return nil, lastErr
}

// AnalyzeContact 使用简历中找到的第一个链接，其余作为 AdditionalLinks
func (a *Analyzer) AnalyzeContact(ctx context.Context, contact types.ContactInfo) *types.LinkedInAnalysis {
	return a.AnalyzeLinks(ctx, LinksFromContact(contact))
}

// AnalyzeLinks links 为空时返回 not_provided
func (a *Analyzer) AnalyzeLinks(ctx context.Context, links []string) *types.LinkedInAnalysis {
	if len(links) == 0 {
		return &types.LinkedInAnalysis{
			Found:      false,
			Status:     types.LinkedInNotProvided,
			Message:    notProvidedMessage,
			AnalyzedAt: a.now(),
		}
	}
	res := a.Analyze(ctx, links[0])
	if len(links) > 1 {
		res.AdditionalLinks = append([]string{}, links[1:]...)
	}
	return res
}

// Analyze 只有完整抓取才算找到；部分抓取或失败统一按访问受限处理
func (a *Analyzer) Analyze(ctx context.Context, url string) *types.LinkedInAnalysis {
	ctx, span := linkedinTracer.Start(ctx, "LinkedIn.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("linkedin.url", tracing.SafeAttributeValue("linkedin.url", url, tracing.MaxURLLength)))

	profile, err := a.Scrape(ctx, url)
	if err != nil || profile.Status == types.LinkedInPartial {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypePermission)
		}
		a.logger.Info().Str("url", tracing.SafeURL(url)).Msg("LinkedIn profile 受访问限制")
		return &types.LinkedInAnalysis{
			Found:      false,
			Status:     types.LinkedInAccessDenied,
			URL:        url,
			Error:      accessDeniedError,
			Message:    accessDeniedMessage,
			Summary:    accessDeniedSummary,
			AnalyzedAt: a.now(),
		}
	}

	return &types.LinkedInAnalysis{
		Found:      true,
		Status:     profile.Status,
		URL:        url,
		Profile:    profile,
		Summary:    a.Summarize(ctx, profile),
		AnalyzedAt: a.now(),
	}
}

// Summarize 调用失败时返回错误占位文本，不中断分析
func (a *Analyzer) Summarize(ctx context.Context, profile *types.LinkedInProfile) string {
	if a.llm == nil {
		return ""
	}
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "❌ Error generating summary: " + err.Error()
	}
	msg, err := a.llm.Generate(ctx, []*schema.Message{
		schema.UserMessage(fmt.Sprintf(summaryPrompt, string(data))),
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("生成LinkedIn摘要失败")
		return "❌ Error generating summary: " + err.Error()
	}
	return strings.TrimSpace(msg.Content)
}
