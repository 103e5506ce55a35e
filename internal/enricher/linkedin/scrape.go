package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/internal/types"
)

var linkedinTracer = otel.Tracer("resume-agent-go/enricher/linkedin")

const (
	methodBrightData = "brightdata_api"
	methodBasic      = "basic_scraping"
	maxBodyChars     = 4000
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ScrapeError 抓取失败，Message 是可展示的原因
type ScrapeError struct {
	Method  string
	Message string
}

func (e *ScrapeError) Error() string {
	return e.Method + ": " + e.Message
}

// ErrNoToken 未配置 BrightData token
var ErrNoToken = errors.New("BrightData API token not configured")

var usernamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)linkedin\.com/in/([A-Za-z0-9_.\-]+)`),
	regexp.MustCompile(`(?i)linkedin\.com/profile/view\?id=([A-Za-z0-9_.\-]+)`),
	regexp.MustCompile(`(?i)linkedin\.com/pub/([A-Za-z0-9_.\-]+)`),
}

// ExtractUsername 从 profile 链接提取用户名，无法识别时返回空串
func ExtractUsername(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	for _, p := range usernamePatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// LinksFromContact 超链接中的 LinkedIn 链接在前，简历正文中的用户名补全为完整链接
func LinksFromContact(contact types.ContactInfo) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		key := strings.ToLower(strings.TrimRight(u, "/"))
		if u == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, u)
	}
	for _, u := range contact.Links[types.LinkLinkedIn] {
		add(strings.TrimSpace(u))
	}
	for _, h := range contact.LinkedIn {
		h = strings.TrimSpace(h)
		if strings.HasPrefix(strings.ToLower(h), "http") {
			add(h)
		} else if h != "" {
			add("https://linkedin.com/in/" + h)
		}
	}
	return out
}

// Scraper 一种抓取方式
type Scraper interface {
	Scrape(ctx context.Context, url string) (*types.LinkedInProfile, error)
}

// BrightDataScraper 通过 BrightData WebScraper API 抓取
type BrightDataScraper struct {
	endpoint string
	token    string
	http     *http.Client
	now      func() time.Time
}

// NewBrightDataScraper token 为空时 Scrape 返回 ErrNoToken
func NewBrightDataScraper(cfg config.LinkedInConfig, hc *http.Client) *BrightDataScraper {
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout(cfg.BrightDataTimeoutSeconds, 60*time.Second)}
	}
	endpoint := strings.TrimRight(cfg.BrightDataEndpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.brightdata.com"
	}
	return &BrightDataScraper{endpoint: endpoint, token: cfg.BrightDataToken, http: hc, now: time.Now}
}

type selector struct {
	Selector string              `json:"selector"`
	Type     string              `json:"type"`
	Extract  map[string]selector `json:"extract,omitempty"`
}

func text(sel string) selector { return selector{Selector: sel, Type: "text"} }

func brightDataRequest(url string) map[string]any {
	return map[string]any{
		"url":      url,
		"format":   "json",
		"wait_for": "networkidle",
		"extract": map[string]selector{
			"name":        text("h1"),
			"headline":    text(".text-body-medium"),
			"location":    text(".text-body-small.inline.t-black--light"),
			"connections": text(".link-without-visited-state"),
			"about":       text(".pv-about__summary-text"),
			"experience": {Selector: ".pv-entity__summary-info", Type: "list", Extract: map[string]selector{
				"title":    text("h3"),
				"company":  text(".pv-entity__secondary-title"),
				"duration": text(".pv-entity__bullet-item"),
			}},
			"education": {Selector: ".pv-education-entity", Type: "list", Extract: map[string]selector{
				"school": text("h3"),
				"degree": text(".pv-entity__secondary-title"),
				"field":  text(".pv-entity__comma-item"),
			}},
			"skills": {Selector: ".pv-skill-category-entity__name", Type: "list"},
		},
	}
}

type brightDataResult struct {
	Name        string                     `json:"name"`
	Headline    string                     `json:"headline"`
	Location    string                     `json:"location"`
	Connections string                     `json:"connections"`
	About       string                     `json:"about"`
	Experience  []types.LinkedInExperience `json:"experience"`
	Education   []types.LinkedInEducation  `json:"education"`
	Skills      []string                   `json:"skills"`
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return strings.TrimSpace(s)
}

// Scrape POST {endpoint}/webscraperapi/request
func (s *BrightDataScraper) Scrape(ctx context.Context, url string) (*types.LinkedInProfile, error) {
	if s.token == "" {
		return nil, ErrNoToken
	}
	ctx, span := linkedinTracer.Start(ctx, "LinkedIn.BrightData", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("linkedin.url", tracing.SafeAttributeValue("linkedin.url", url, tracing.MaxURLLength))))
	defer span.End()

	payload, err := json.Marshal(brightDataRequest(url))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/webscraperapi/request", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, &ScrapeError{Method: methodBrightData, Message: "BrightData scraping failed: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := &ScrapeError{Method: methodBrightData, Message: fmt.Sprintf("BrightData API error: %d", resp.StatusCode)}
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return nil, err
	}

	var data brightDataResult
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return nil, &ScrapeError{Method: methodBrightData, Message: "Failed to process BrightData result: " + err.Error()}
	}
	return &types.LinkedInProfile{
		URL:         url,
		Username:    ExtractUsername(url),
		Name:        orNA(data.Name),
		Headline:    orNA(data.Headline),
		Location:    orNA(data.Location),
		Connections: orNA(data.Connections),
		About:       orNA(data.About),
		Experience:  data.Experience,
		Education:   data.Education,
		Skills:      data.Skills,
		ExtractedAt: s.now(),
		Status:      types.LinkedInSuccessBrightData,
		Method:      methodBrightData,
	}, nil
}

// BasicScraper 直接请求公开页面，只能拿到标题、描述和正文文本
type BasicScraper struct {
	userAgent string
	http      *http.Client
	now       func() time.Time
}

// NewBasicScraper 创建基础抓取器
func NewBasicScraper(cfg config.LinkedInConfig, hc *http.Client) *BasicScraper {
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout(cfg.TimeoutSeconds, 30*time.Second)}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &BasicScraper{userAgent: ua, http: hc, now: time.Now}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &te) && te.Timeout())
}

// Scrape 成功时状态总是 partially_extracted
func (s *BasicScraper) Scrape(ctx context.Context, url string) (*types.LinkedInProfile, error) {
	username := ExtractUsername(url)
	if username == "" {
		return nil, &ScrapeError{Method: methodBasic, Message: "Invalid LinkedIn URL format"}
	}
	ctx, span := linkedinTracer.Start(ctx, "LinkedIn.BasicScrape", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("linkedin.url", tracing.SafeAttributeValue("linkedin.url", url, tracing.MaxURLLength))))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ScrapeError{Method: methodBasic, Message: "Failed to scrape LinkedIn profile: " + err.Error()}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.http.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		if isTimeout(err) {
			return nil, &ScrapeError{Method: methodBasic, Message: "Request timeout when accessing LinkedIn"}
		}
		return nil, &ScrapeError{Method: methodBasic, Message: "Failed to scrape LinkedIn profile: " + err.Error()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &ScrapeError{Method: methodBasic, Message: "Rate limited by LinkedIn"}
	case http.StatusForbidden:
		return nil, &ScrapeError{Method: methodBasic, Message: "Access forbidden by LinkedIn"}
	default:
		return nil, &ScrapeError{Method: methodBasic, Message: fmt.Sprintf("HTTP %d: Could not access LinkedIn profile", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ScrapeError{Method: methodBasic, Message: "Failed to scrape LinkedIn profile: " + err.Error()}
	}
	profile := &types.LinkedInProfile{
		URL:         url,
		Username:    username,
		ExtractedAt: s.now(),
		Status:      types.LinkedInPartial,
		Method:      methodBasic,
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return profile, nil
	}
	if title := doc.Find("title").First().Text(); title != "" {
		if i := strings.Index(title, "|"); i >= 0 {
			title = title[:i]
		}
		profile.Name = strings.TrimSpace(title)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		profile.Description = strings.TrimSpace(desc)
	}

	doc.Find("script, style, noscript, iframe, svg, header, footer, nav").Remove()
	if html, err := doc.Find("body").Html(); err == nil {
		if md, err := htmltomarkdown.ConvertString(html); err == nil {
			md = strings.TrimSpace(md)
			if len([]rune(md)) > maxBodyChars {
				md = string([]rune(md)[:maxBodyChars]) + "..."
			}
			profile.About = md
		}
	}
	return profile, nil
}
