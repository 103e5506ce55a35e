package github

import (
	"regexp"
	"strings"

	"resume-agent-go/internal/types"
)

const (
	userPart = `([A-Za-z0-9][-A-Za-z0-9]*[A-Za-z0-9])`
	repoPart = `([A-Za-z0-9][-A-Za-z0-9._]*[A-Za-z0-9])`
)

// 仓库模式比 profile 模式更具体，先匹配
var (
	repoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)github\.com/` + userPart + `/` + repoPart + `/?$`),
		regexp.MustCompile(`(?i)github\.com/` + userPart + `/` + repoPart + `/.*$`),
	}
	profilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)github\.com/` + userPart + `/?$`),
		regexp.MustCompile(`(?i)github\.com/` + userPart + `/?\?.*$`),
	}
)

// ClassifyURL 判断链接是 profile 还是仓库，并提取用户名和仓库名
func ClassifyURL(url string) types.GitHubURLInfo {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	for _, p := range repoPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return types.GitHubURLInfo{Type: types.GitHubURLRepository, Username: m[1], Repository: m[2]}
		}
	}
	for _, p := range profilePatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return types.GitHubURLInfo{Type: types.GitHubURLProfile, Username: m[1]}
		}
	}
	return types.GitHubURLInfo{Type: types.GitHubURLUnknown}
}

// LinksFromContact 汇总简历中的 GitHub 链接：超链接、profile 和仓库，按顺序去重
func LinksFromContact(contact types.ContactInfo) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		key := strings.ToLower(strings.TrimRight(u, "/"))
		if u == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, u)
	}
	for _, u := range contact.Links[types.LinkGitHub] {
		add(u)
	}
	for _, p := range contact.GitHubProfiles {
		add("https://github.com/" + p)
	}
	for _, r := range contact.GitHubRepos {
		add("https://github.com/" + r)
	}
	return out
}
