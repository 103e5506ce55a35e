package types

// DocumentFormat 简历文件格式，由扩展名决定
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatTXT  DocumentFormat = "txt"
	FormatMD   DocumentFormat = "md"
	FormatDOCX DocumentFormat = "docx"
)

// SectionName 表示简历章节名称
type SectionName string

const (
	SectionContactInfo    SectionName = "contact_info"
	SectionSummary        SectionName = "summary"
	SectionExperience     SectionName = "experience"
	SectionEducation      SectionName = "education"
	SectionSkills         SectionName = "skills"
	SectionProjects       SectionName = "projects"
	SectionCertifications SectionName = "certifications"
	SectionResearch       SectionName = "research"
	SectionPublications   SectionName = "publications"
	SectionSocial         SectionName = "social"
	SectionAchievements   SectionName = "achievements"
	SectionWorkshops      SectionName = "workshops"
	SectionUnknown        SectionName = "unknown"
)

// LinkCategory 超链接分类
type LinkCategory string

const (
	LinkGitHub               LinkCategory = "github"
	LinkLinkedIn             LinkCategory = "linkedin"
	LinkResearchPublications LinkCategory = "research_publications"
	LinkCertifications       LinkCategory = "certifications"
	LinkSocialMedia          LinkCategory = "social_media"
	LinkOther                LinkCategory = "other"
)

// AllLinkCategories 按固定顺序列出全部分类
var AllLinkCategories = []LinkCategory{
	LinkGitHub,
	LinkLinkedIn,
	LinkResearchPublications,
	LinkCertifications,
	LinkSocialMedia,
	LinkOther,
}

// Hyperlink PDF 中的一个链接注释
type Hyperlink struct {
	URL         string       `json:"url"`
	Page        int          `json:"page"` // 从1开始
	Category    LinkCategory `json:"category"`
	Description string       `json:"description"`
}

// ResumeDocument 加载后的简历原文
type ResumeDocument struct {
	Path       string         `json:"path"`
	Format     DocumentFormat `json:"format"`
	Text       string         `json:"text"`
	Hyperlinks []Hyperlink    `json:"hyperlinks"`
}

// LinksByCategory 将链接按分类聚合为 URL 列表
func (d *ResumeDocument) LinksByCategory() map[LinkCategory][]string {
	out := make(map[LinkCategory][]string)
	for _, h := range d.Hyperlinks {
		out[h.Category] = append(out[h.Category], h.URL)
	}
	return out
}

// SectionMetadata 分块时从章节文本中提取的联系信息
type SectionMetadata struct {
	HasGitHub     bool     `json:"has_github"`
	HasLinkedIn   bool     `json:"has_linkedin"`
	GitHubRepos   []string `json:"github_repos,omitempty"`
	SectionEmails []string `json:"section_emails,omitempty"`
}

// Section 简历章节的一个分块，创建后不可修改
type Section struct {
	Name        SectionName     `json:"section"`
	Text        string          `json:"text"`
	ChunkIndex  int             `json:"chunk_index"`
	TotalChunks int             `json:"total_chunks"`
	Source      string          `json:"source"`
	Metadata    SectionMetadata `json:"metadata"`
}

// ContactInfo 从简历文本和超链接中提取的联系方式
type ContactInfo struct {
	Emails         []string                  `json:"emails"`
	Phones         []string                  `json:"phones"`
	LinkedIn       []string                  `json:"linkedin"`
	GitHubProfiles []string                  `json:"github_profiles"`
	GitHubRepos    []string                  `json:"github_repos"`
	Links          map[LinkCategory][]string `json:"hyperlinks"`
}

// IsEmpty 没有任何可用的联系信息
func (c *ContactInfo) IsEmpty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0 && len(c.LinkedIn) == 0 &&
		len(c.GitHubProfiles) == 0 && len(c.GitHubRepos) == 0
}
