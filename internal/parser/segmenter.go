package parser

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/types"
)

// sectionHeader 章节名与其标题关键字 (正则片段)
type sectionHeader struct {
	name     types.SectionName
	keywords string
}

// sectionTable 顺序即优先级，也是章节输出顺序
var sectionTable = []sectionHeader{
	{types.SectionSummary, `SUMMARY|OBJECTIVE|PROFILE|ABOUT\s+ME`},
	{types.SectionExperience, `WORK\s+EXPERIENCE|PROFESSIONAL\s+EXPERIENCE|EXPERIENCE`},
	{types.SectionEducation, `EDUCATION`},
	{types.SectionSkills, `TECHNICAL\s+SKILLS?|SKILLS?\s+SUMMARY|SKILLS?`},
	{types.SectionProjects, `PROJECTS?`},
	{types.SectionCertifications, `(?:RELEVANT\s+COURSEWORK\s+AND\s+)?CERTIFICATIONS?`},
	{types.SectionResearch, `RESEARCH\s+EXPERIENCE|RESEARCH`},
	{types.SectionPublications, `PUBLICATIONS?`},
	{types.SectionSocial, `SOCIAL\s+ENGAGEMENTS?|SOCIAL\s+MEDIA|SOCIAL\s+LINKS|SOCIAL`},
	{types.SectionAchievements, `ACHIEVEMENTS?|AWARDS?|HONORS?`},
	{types.SectionWorkshops, `WORKSHOPS?|TRAINING`},
}

type compiledHeader struct {
	name   types.SectionName
	exact  *regexp.Regexp // 整行就是关键字
	loose  *regexp.Regexp // 关键字前后最多三个词
	inline *regexp.Regexp // 正文中的关键字
}

var compiledHeaders = compileHeaders()

func compileHeaders() []compiledHeader {
	out := make([]compiledHeader, 0, len(sectionTable))
	for _, h := range sectionTable {
		out = append(out, compiledHeader{
			name:   h.name,
			exact:  regexp.MustCompile(`(?i)^(?:` + h.keywords + `)$`),
			loose:  regexp.MustCompile(`(?i)^(?:[A-Za-z&/,]+\s+){0,3}(?:` + h.keywords + `)(?:\s+[A-Za-z&/,]+){0,3}$`),
			inline: regexp.MustCompile(`(?i)\b(?:` + h.keywords + `)\b[\s:]*`),
		})
	}
	return out
}

const maxHeaderLineLen = 50

// headerLine 文本中一个被识别为章节标题的行
type headerLine struct {
	name  types.SectionName
	start int // 行首偏移
	end   int // 行尾偏移 (不含换行)
}

// Segmenter 将简历文本切分为章节并分块
type Segmenter struct {
	splitter     *RecursiveSplitter
	minLength    int
	logger       zerolog.Logger
	emitFallback bool
}

// SegmenterOption Segmenter 的配置选项
type SegmenterOption func(*Segmenter)

// WithSplitter 自定义分块器
func WithSplitter(s *RecursiveSplitter) SegmenterOption {
	return func(seg *Segmenter) {
		seg.splitter = s
	}
}

// WithMinSectionLength 章节文本长度需大于该值才会输出
func WithMinSectionLength(n int) SegmenterOption {
	return func(seg *Segmenter) {
		if n >= 0 {
			seg.minLength = n
		}
	}
}

// WithUnknownFallback 没有识别出任何章节时，整篇文本作为 unknown 章节输出
func WithUnknownFallback(enabled bool) SegmenterOption {
	return func(seg *Segmenter) {
		seg.emitFallback = enabled
	}
}

// WithSegmenterLogger 配置日志
func WithSegmenterLogger(l zerolog.Logger) SegmenterOption {
	return func(seg *Segmenter) {
		seg.logger = l
	}
}

// NewSegmenter 默认 400/50 分块，最短章节 20 字符
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		minLength:    20,
		logger:       logger.Logger.With().Str("component", "segmenter").Logger(),
		emitFallback: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.splitter == nil {
		s.splitter = mustRecursiveSplitter(400, 50)
	}
	return s
}

// Split 返回分块后的章节和联系信息。第一个章节总是 contact_info。
func (s *Segmenter) Split(doc *types.ResumeDocument) ([]types.Section, types.ContactInfo) {
	contact := ExtractContactInfo(doc.Text, doc.Hyperlinks)

	sections := []types.Section{{
		Name:        types.SectionContactInfo,
		Text:        FormatContactInfo(contact),
		ChunkIndex:  0,
		TotalChunks: 1,
		Source:      doc.Path,
		Metadata:    sectionMetadata(contact),
	}}

	found := 0
	captured := s.captureSections(doc.Text)
	for _, h := range sectionTable {
		text, ok := captured[h.name]
		if !ok {
			continue
		}
		sections = append(sections, s.chunkSection(h.name, text, doc.Path)...)
		found++
	}

	if found == 0 && s.emitFallback {
		if text := strings.TrimSpace(doc.Text); len([]rune(text)) > s.minLength {
			sections = append(sections, s.chunkSection(types.SectionUnknown, text, doc.Path)...)
		}
	}

	s.logger.Info().
		Str("source", doc.Path).
		Int("sections", found).
		Int("chunks", len(sections)).
		Msg("简历章节切分完成")
	return sections, contact
}

// SectionNames 返回识别出的章节名 (按输出顺序，不含 contact_info)
func SectionNames(sections []types.Section) []types.SectionName {
	var names []types.SectionName
	seen := make(map[types.SectionName]bool)
	for _, sec := range sections {
		if sec.Name == types.SectionContactInfo || seen[sec.Name] {
			continue
		}
		seen[sec.Name] = true
		names = append(names, sec.Name)
	}
	return names
}

func (s *Segmenter) chunkSection(name types.SectionName, text, source string) []types.Section {
	meta := sectionMetadata(ExtractContactInfo(text, nil))
	chunks, err := s.splitter.Split(context.Background(), text)
	if err != nil {
		s.logger.Warn().Err(err).Str("section", string(name)).Msg("章节分块失败, 整段作为一个分块")
		chunks = []string{strings.TrimSpace(text)}
	}
	out := make([]types.Section, 0, len(chunks))
	for i, chunk := range chunks {
		out = append(out, types.Section{
			Name:        name,
			Text:        chunk,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Source:      source,
			Metadata:    meta,
		})
	}
	return out
}

func sectionMetadata(c types.ContactInfo) types.SectionMetadata {
	return types.SectionMetadata{
		HasGitHub:     len(c.GitHubRepos) > 0,
		HasLinkedIn:   len(c.LinkedIn) > 0,
		GitHubRepos:   c.GitHubRepos,
		SectionEmails: c.Emails,
	}
}

// captureSections 每个章节取第一次出现：优先标题行，其次正文中的关键字。
// 章节文本截止到下一个属于其他章节的标题行。
func (s *Segmenter) captureSections(text string) map[types.SectionName]string {
	headers := findHeaderLines(text)
	out := make(map[types.SectionName]string)

	for _, h := range compiledHeaders {
		start := -1
		for _, hl := range headers {
			if hl.name == h.name {
				start = hl.end
				break
			}
		}
		if start < 0 {
			start = firstInlineMatch(h.inline, text, headers)
			if start < 0 {
				continue
			}
		}

		end := len(text)
		for _, hl := range headers {
			if hl.start >= start && hl.name != h.name {
				end = hl.start
				break
			}
		}

		captured := strings.TrimSpace(text[start:end])
		if len([]rune(captured)) > s.minLength {
			out[h.name] = captured
		}
	}
	return out
}

// firstInlineMatch 跳过落在其他章节标题行内的关键字，返回匹配结束位置
func firstInlineMatch(re *regexp.Regexp, text string, headers []headerLine) int {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		inHeader := false
		for _, hl := range headers {
			if loc[0] >= hl.start && loc[0] < hl.end {
				inHeader = true
				break
			}
		}
		if !inHeader {
			return loc[1]
		}
	}
	return -1
}

// findHeaderLines 扫描所有行，识别章节标题
func findHeaderLines(text string) []headerLine {
	var headers []headerLine
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		lineStart := offset
		offset += len(line)
		content := strings.TrimRight(line, "\r\n")
		if name, ok := classifyHeader(content); ok {
			headers = append(headers, headerLine{
				name:  name,
				start: lineStart,
				end:   lineStart + len(content),
			})
		}
	}
	return headers
}

// classifyHeader 先整行精确匹配，再宽松匹配 (要求全大写或以冒号结尾)
func classifyHeader(line string) (types.SectionName, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len([]rune(trimmed)) > maxHeaderLineLen {
		return "", false
	}
	endsWithColon := strings.HasSuffix(trimmed, ":")
	label := strings.Trim(trimmed, " \t#*-=_:|•")
	if label == "" || strings.ContainsAny(label, ".@") {
		return "", false
	}
	label = strings.Join(strings.Fields(label), " ")

	for _, h := range compiledHeaders {
		if h.exact.MatchString(label) {
			return h.name, true
		}
	}
	if !endsWithColon && !isUpper(label) {
		return "", false
	}
	for _, h := range compiledHeaders {
		if h.loose.MatchString(label) {
			return h.name, true
		}
	}
	return "", false
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
