package parser

import (
	"regexp"
	"strings"

	"resume-agent-go/internal/types"
)

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// 依次尝试：印度、美国、通用国际格式
	phoneRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:\+?91[-.\s]?)?(?:\(?([0-9]{3,4})\)?[-.\s]?)?([0-9]{3})[-.\s]?([0-9]{4})`),
		regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})`),
		regexp.MustCompile(`(?:\+?[0-9]{1,3}[-.\s]?)?([0-9]{8,15})`),
	}

	linkedInRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)linkedin\.com/in/([A-Za-z0-9_.\-]+)`),
		regexp.MustCompile(`(?i)LinkedIn:\s*([A-Za-z0-9_.\-]+)`),
		regexp.MustCompile(`(?i)linkedin\.com/profile/view\?id=([A-Za-z0-9_.\-]+)`),
	}

	githubURLRe   = regexp.MustCompile(`(?i)github\.com/([A-Za-z0-9_.\-]+)(?:/([A-Za-z0-9_.\-]+))?`)
	githubLabelRe = regexp.MustCompile(`(?i)GitHub:\s*([A-Za-z0-9_.\-]+)`)
)

const minPhoneDigits = 8

// orderedSet 去重并保持首次出现顺序
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) list() []string {
	if len(s.items) == 0 {
		return []string{}
	}
	return s.items
}

// ExtractContactInfo 从文本中提取邮箱、电话、LinkedIn 和 GitHub 信息。
// links 为 PDF 超链接，按分类合并进 ContactInfo.Links。
func ExtractContactInfo(text string, links []types.Hyperlink) types.ContactInfo {
	emails := newOrderedSet()
	for _, m := range emailRe.FindAllString(text, -1) {
		emails.add(m)
	}

	phones := newOrderedSet()
	for _, re := range phoneRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			parts := make([]string, 0, len(m)-1)
			for _, g := range m[1:] {
				if g != "" {
					parts = append(parts, g)
				}
			}
			phone := strings.Join(parts, "-")
			if countDigits(phone) >= minPhoneDigits {
				phones.add(phone)
			}
		}
	}

	linkedIn := newOrderedSet()
	for _, re := range linkedInRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			linkedIn.add(m[1])
		}
	}

	profiles := newOrderedSet()
	repos := newOrderedSet()
	for _, m := range githubURLRe.FindAllStringSubmatch(text, -1) {
		profiles.add(m[1])
		if m[2] != "" {
			repos.add(m[1] + "/" + m[2])
		}
	}
	for _, m := range githubLabelRe.FindAllStringSubmatch(text, -1) {
		profiles.add(m[1])
	}

	info := types.ContactInfo{
		Emails:         emails.list(),
		Phones:         phones.list(),
		LinkedIn:       linkedIn.list(),
		GitHubProfiles: profiles.list(),
		GitHubRepos:    repos.list(),
	}
	info.Links = make(map[types.LinkCategory][]string, len(types.AllLinkCategories))
	for _, c := range types.AllLinkCategories {
		info.Links[c] = []string{}
	}
	for _, l := range links {
		info.Links[l.Category] = append(info.Links[l.Category], l.URL)
	}
	return info
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// FormatContactInfo 生成 contact_info 章节的文本
func FormatContactInfo(c types.ContactInfo) string {
	var lines []string
	if len(c.Emails) > 0 {
		lines = append(lines, "Emails: "+strings.Join(c.Emails, ", "))
	}
	if len(c.Phones) > 0 {
		lines = append(lines, "Phones: "+strings.Join(c.Phones, ", "))
	}
	if len(c.LinkedIn) > 0 {
		lines = append(lines, "LinkedIn: "+strings.Join(c.LinkedIn, ", "))
	}
	if len(c.GitHubProfiles) > 0 {
		lines = append(lines, "GitHub Profiles: "+strings.Join(c.GitHubProfiles, ", "))
	}
	if len(c.GitHubRepos) > 0 {
		lines = append(lines, "GitHub Repositories: "+strings.Join(c.GitHubRepos, ", "))
	}
	if len(lines) == 0 {
		return "No contact information extracted"
	}
	return strings.Join(lines, "\n")
}
