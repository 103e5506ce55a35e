package github

import (
	"math"
	"sort"
	"time"

	"resume-agent-go/internal/types"
)

const (
	unknownLanguage = "Unknown"
	recentRepoCount = 5
)

// ActivityFromDays 最近一次 push 距今 <3 天为 high，<30 为 medium，<45 为 low。
// medium 上限取 30 而非 14，保证 20 天判为 medium。
func ActivityFromDays(days float64) types.ActivityLevel {
	switch {
	case days < 3:
		return types.ActivityHigh
	case days < 30:
		return types.ActivityMedium
	case days < 45:
		return types.ActivityLow
	default:
		return types.ActivityNone
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeStats 聚合仓库统计。profile 可为 nil。
// 语言字节数按 size_kb×1024 全部计入仓库主语言，只是粗略估计。
func ComputeStats(profile *types.GitHubProfile, repos []types.GitHubRepository, now time.Time) types.GitHubStats {
	stats := types.GitHubStats{
		LanguageBytes: make(map[string]int64),
		TopLanguages:  []types.LanguageShare{},
		ActivityLevel: types.ActivityNone,
		RecentRepos:   []string{},
	}
	if profile != nil {
		stats.PublicRepos = profile.PublicRepos
		stats.Followers = profile.Followers
		stats.Following = profile.Following
	}

	var langOrder []string
	repoCount := make(map[string]int)
	var latest time.Time
	for _, r := range repos {
		stats.TotalStars += r.Stars
		stats.TotalForks += r.Forks
		stats.OpenIssues += r.OpenIssues
		if r.IsArchived {
			stats.ArchivedRepos++
		}

		lang := r.Language
		if lang == "" {
			lang = unknownLanguage
		}
		if _, ok := stats.LanguageBytes[lang]; !ok {
			langOrder = append(langOrder, lang)
		}
		stats.LanguageBytes[lang] += int64(r.SizeKB) * 1024
		repoCount[lang]++

		if r.PushedAt.After(latest) {
			latest = r.PushedAt
		}
	}

	var total int64
	for _, b := range stats.LanguageBytes {
		total += b
	}
	if total == 0 {
		total = 1
	}
	for _, lang := range langOrder {
		b := stats.LanguageBytes[lang]
		stats.TopLanguages = append(stats.TopLanguages, types.LanguageShare{
			Language:  lang,
			Bytes:     b,
			Percent:   round2(float64(b) * 100 / float64(total)),
			RepoCount: repoCount[lang],
		})
	}
	sort.SliceStable(stats.TopLanguages, func(i, j int) bool {
		return stats.TopLanguages[i].Bytes > stats.TopLanguages[j].Bytes
	})

	if !latest.IsZero() {
		days := now.Sub(latest).Hours() / 24
		rounded := round2(days)
		stats.RecentPushActivityDays = &rounded
		stats.ActivityLevel = ActivityFromDays(days)
	}

	byPush := make([]types.GitHubRepository, len(repos))
	copy(byPush, repos)
	sort.SliceStable(byPush, func(i, j int) bool { return byPush[i].PushedAt.After(byPush[j].PushedAt) })
	for i := 0; i < len(byPush) && i < recentRepoCount; i++ {
		stats.RecentRepos = append(stats.RecentRepos, byPush[i].Name)
	}
	return stats
}
