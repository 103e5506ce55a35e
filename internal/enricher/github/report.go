package github

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"resume-agent-go/internal/types"
)

const reportRule = "============================================================"

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Report 生成 AnalyzeLinks 结果的文本报告
func Report(source string, analysis *types.GitHubAnalysis, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("🔍 DETAILED GITHUB ANALYSIS REPORT")
	line(reportRule)
	line("Resume File: %s", orNA(source))
	line("Analysis Date: %s", now.Format("2006-01-02 15:04:05"))
	line("")

	s := analysis.Summary
	line("📊 SUMMARY:")
	line("• Total GitHub links found: %d", s.TotalLinks)
	line("• Profiles analyzed: %d", s.ProfilesFound)
	line("• Repositories analyzed: %d", s.RepositoriesFound)
	line("• Unique users: %d", len(s.UniqueUsers))

	if len(analysis.Profiles) > 0 {
		line("")
		line("👤 GITHUB PROFILES:")
		for _, name := range sortedKeys(analysis.Profiles) {
			p := analysis.Profiles[name]
			line("")
			line("📋 %s", name)
			line("   Name: %s", orNA(p.Profile.Name))
			line("   Public Repos: %d", p.Profile.PublicRepos)
			line("   Followers: %d", p.Profile.Followers)
			line("   Following: %d", p.Profile.Following)
			if p.Profile.Bio != "" {
				line("   Bio: %s", p.Profile.Bio)
			}
			if p.Profile.Company != "" {
				line("   Company: %s", p.Profile.Company)
			}
			if p.Profile.Location != "" {
				line("   Location: %s", p.Profile.Location)
			}
			line("   Activity: %s", p.Stats.ActivityLevel)
			if len(p.Stats.TopLanguages) > 0 {
				langs := make([]string, 0, len(p.Stats.TopLanguages))
				for _, l := range p.Stats.TopLanguages {
					langs = append(langs, fmt.Sprintf("%s (%.2f%%)", l.Language, l.Percent))
				}
				line("   Top Languages: %s", strings.Join(langs, ", "))
			}
			if len(p.Repositories) > 0 {
				names := make([]string, 0, len(p.Repositories))
				for _, r := range p.Repositories {
					names = append(names, r.Name)
				}
				line("   Recent Repositories: %s", strings.Join(names, ", "))
			}
		}
	}

	if len(analysis.Repositories) > 0 {
		line("")
		line("📂 REPOSITORIES:")
		for _, name := range sortedKeys(analysis.Repositories) {
			r := analysis.Repositories[name]
			line("")
			line("📁 %s", name)
			desc := r.Description
			if desc == "" {
				desc = "No description available"
			}
			line("   Description: %s", desc)
			line("   Language: %s", orNA(r.Language))
			line("   Stars: %d", r.Stars)
			line("   Forks: %d", r.Forks)
			if len(r.Topics) > 0 {
				line("   Topics: %s", strings.Join(r.Topics, ", "))
			}
			if !r.UpdatedAt.IsZero() {
				line("   Last Updated: %s", r.UpdatedAt.Format(time.RFC3339))
			}
		}
	}

	if len(s.Errors) > 0 {
		line("")
		line("⚠️ ERRORS ENCOUNTERED:")
		for _, e := range s.Errors {
			line("   • %s", e)
		}
	}

	line("")
	line(reportRule)
	b.WriteString("End of Report")
	return b.String()
}

// UserReport ParseUser 结果的简短文本
func UserReport(r *types.GitHubUserReport) string {
	if r.Meta.Error != "" {
		return fmt.Sprintf("❌ %s: %s", r.Meta.Username, r.Meta.Error)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (%s)\n", r.Meta.Username, orNA(r.Profile.Name))
	if r.Stats != nil {
		st := r.Stats
		fmt.Fprintf(&b, "Repositories: %d fetched, %d public\n", len(r.Repositories), st.PublicRepos)
		fmt.Fprintf(&b, "Stars: %d  Forks: %d  Open issues: %d  Archived: %d\n",
			st.TotalStars, st.TotalForks, st.OpenIssues, st.ArchivedRepos)
		fmt.Fprintf(&b, "Followers: %d  Following: %d\n", st.Followers, st.Following)
		fmt.Fprintf(&b, "Activity: %s", st.ActivityLevel)
		if st.RecentPushActivityDays != nil {
			fmt.Fprintf(&b, " (last push %.2f days ago)", *st.RecentPushActivityDays)
		}
		b.WriteByte('\n')
		for _, l := range st.TopLanguages {
			fmt.Fprintf(&b, "  %-12s %6.2f%%  %d repos\n", l.Language, l.Percent, l.RepoCount)
		}
		if len(st.RecentRepos) > 0 {
			fmt.Fprintf(&b, "Recent: %s\n", strings.Join(st.RecentRepos, ", "))
		}
	}
	if r.Meta.RateLimitRemaining != nil {
		fmt.Fprintf(&b, "Rate limit remaining: %d\n", *r.Meta.RateLimitRemaining)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
