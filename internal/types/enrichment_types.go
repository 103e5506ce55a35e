package types

import "time"

// GitHubURLType 链接分类结果
type GitHubURLType string

const (
	GitHubURLProfile    GitHubURLType = "profile"
	GitHubURLRepository GitHubURLType = "repository"
	GitHubURLUnknown    GitHubURLType = "unknown"
)

// GitHubURLInfo ClassifyURL 的结果
type GitHubURLInfo struct {
	Type       GitHubURLType `json:"url_type"`
	Username   string        `json:"username,omitempty"`
	Repository string        `json:"repository,omitempty"`
}

// GitHubProfile GitHub 用户信息的规范化子集
type GitHubProfile struct {
	Username        string    `json:"username"`
	Name            string    `json:"name,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Company         string    `json:"company,omitempty"`
	Location        string    `json:"location,omitempty"`
	Email           string    `json:"email,omitempty"`
	Blog            string    `json:"blog,omitempty"`
	TwitterUsername string    `json:"twitter_username,omitempty"`
	PublicRepos     int       `json:"public_repos"`
	Followers       int       `json:"followers"`
	Following       int       `json:"following"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ProfileURL      string    `json:"profile_url"`
}

// GitHubRepository GitHub 仓库信息的规范化子集
type GitHubRepository struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description,omitempty"`
	Language      string    `json:"language,omitempty"`
	Topics        []string  `json:"topics,omitempty"`
	License       string    `json:"license,omitempty"` // SPDX id
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Watchers      int       `json:"watchers"`
	OpenIssues    int       `json:"open_issues"`
	SizeKB        int       `json:"size_kb"`
	IsPrivate     bool      `json:"is_private"`
	IsFork        bool      `json:"is_fork"`
	IsArchived    bool      `json:"is_archived"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	URL           string    `json:"url"`
	CloneURL      string    `json:"clone_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
}

// ActivityLevel 根据最近一次 push 距今天数划分的活跃度
type ActivityLevel string

const (
	ActivityHigh   ActivityLevel = "high"
	ActivityMedium ActivityLevel = "medium"
	ActivityLow    ActivityLevel = "low"
	ActivityNone   ActivityLevel = "none"
)

// LanguageShare 单个语言的占比
type LanguageShare struct {
	Language  string  `json:"language"`
	Bytes     int64   `json:"bytes"`
	Percent   float64 `json:"percent"`
	RepoCount int     `json:"repo_count"`
}

// GitHubStats 一组仓库的聚合统计。
// LanguageBytes 是近似值：每个仓库的 size_kb×1024 全部计入其主语言。
type GitHubStats struct {
	PublicRepos            int              `json:"public_repos"`
	Followers              int              `json:"followers"`
	Following              int              `json:"following"`
	TotalStars             int              `json:"total_stars"`
	TotalForks             int              `json:"total_forks"`
	OpenIssues             int              `json:"open_issues"`
	ArchivedRepos          int              `json:"archived_repos"`
	LanguageBytes          map[string]int64 `json:"language_bytes"`
	TopLanguages           []LanguageShare  `json:"top_languages"`
	RecentPushActivityDays *float64         `json:"recent_push_activity_days"`
	ActivityLevel          ActivityLevel    `json:"activity_level"`
	RecentRepos            []string         `json:"recent_repos"`
}

// GitHubProfileAnalysis 一个用户的 profile、最近仓库和统计
type GitHubProfileAnalysis struct {
	Profile      GitHubProfile      `json:"profile"`
	Repositories []GitHubRepository `json:"repositories"`
	Stats        GitHubStats        `json:"stats"`
}

// GitHubSummary 分析汇总，失败只记录在 Errors 中
type GitHubSummary struct {
	TotalLinks        int      `json:"total_links"`
	ProfilesFound     int      `json:"profiles_found"`
	RepositoriesFound int      `json:"repositories_found"`
	UniqueUsers       []string `json:"unique_users"`
	Errors            []string `json:"errors"`
}

// GitHubAnalysis AnalyzeLinks 的结果
type GitHubAnalysis struct {
	Links        []string                          `json:"github_links"`
	Profiles     map[string]*GitHubProfileAnalysis `json:"profiles"`
	Repositories map[string]*GitHubRepository      `json:"repositories"`
	Summary      GitHubSummary                     `json:"summary"`
}

// GitHubUserMeta ParseUser 的元信息
type GitHubUserMeta struct {
	Username           string    `json:"username"`
	FetchedAt          time.Time `json:"fetched_at"`
	RateLimitRemaining *int      `json:"rate_limit_remaining"`
	ErrorCount         int       `json:"error_count"`
	Error              string    `json:"error,omitempty"`
}

// GitHubUserReport ParseUser 的结果
type GitHubUserReport struct {
	Profile      *GitHubProfile     `json:"profile,omitempty"`
	Repositories []GitHubRepository `json:"repositories"`
	Stats        *GitHubStats       `json:"stats,omitempty"`
	Meta         GitHubUserMeta     `json:"meta"`
}

// LinkedInStatus 抓取结果状态
type LinkedInStatus string

const (
	LinkedInSuccessBrightData LinkedInStatus = "success_brightdata"
	LinkedInPartial           LinkedInStatus = "partially_extracted"
	LinkedInAccessDenied      LinkedInStatus = "access_denied"
	LinkedInNotProvided       LinkedInStatus = "not_provided"
)

// LinkedInExperience 工作经历条目
type LinkedInExperience struct {
	Title    string `json:"title,omitempty"`
	Company  string `json:"company,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// LinkedInEducation 教育经历条目
type LinkedInEducation struct {
	School string `json:"school,omitempty"`
	Degree string `json:"degree,omitempty"`
	Field  string `json:"field,omitempty"`
}

// LinkedInProfile 尽力抓取到的字段，缺失很常见
type LinkedInProfile struct {
	URL         string               `json:"url"`
	Username    string               `json:"username,omitempty"`
	Name        string               `json:"name,omitempty"`
	Headline    string               `json:"headline,omitempty"`
	Location    string               `json:"location,omitempty"`
	Connections string               `json:"connections,omitempty"`
	About       string               `json:"about,omitempty"`
	Description string               `json:"description,omitempty"`
	Experience  []LinkedInExperience `json:"experience,omitempty"`
	Education   []LinkedInEducation  `json:"education,omitempty"`
	Skills      []string             `json:"skills,omitempty"`
	ExtractedAt time.Time            `json:"extracted_at"`
	Status      LinkedInStatus       `json:"status"`
	Method      string               `json:"method"`
}

// LinkedInAnalysis Found=false 是正常的终态，不是错误
type LinkedInAnalysis struct {
	Found           bool             `json:"linkedin_found"`
	Status          LinkedInStatus   `json:"status"`
	URL             string           `json:"linkedin_url,omitempty"`
	AdditionalLinks []string         `json:"additional_links,omitempty"`
	Profile         *LinkedInProfile `json:"profile_data,omitempty"`
	Summary         string           `json:"professional_summary,omitempty"`
	Message         string           `json:"message,omitempty"`
	Error           string           `json:"error,omitempty"`
	AnalyzedAt      time.Time        `json:"analysis_timestamp"`
}
