package parser

import (
	"strings"

	"resume-agent-go/internal/types"
)

var (
	researchPlatforms = []string{
		"researchgate.net", "scholar.google.", "orcid.org", "ieee.org",
		"acm.org", "arxiv.org", "pubmed.ncbi.nlm.nih.gov", "semanticscholar.org",
		"dblp.org", "springer.com", "sciencedirect.com", "jstor.org", "doi.org",
	}
	certificationPlatforms = []string{
		"credly.com", "badgr.com", "certifications.aws", "cloud.google.com/certification",
		"docs.microsoft.com/certifications", "coursera.org/account/accomplishments",
		"udacity.com/certificate", "edx.org/certificates", "codecademy.com/profiles",
		"freecodecamp.org/certification", "cisco.com/c/en/us/training-events/training-certifications",
	}
	socialPlatforms = []string{
		"twitter.com", "x.com", "facebook.com", "instagram.com", "youtube.com",
		"medium.com", "dev.to", "stackoverflow.com", "reddit.com",
	}
	portfolioHints = []string{"portfolio", "blog", "personal", "website"}
)

// CategorizeLink 按子串匹配确定链接分类，返回分类和描述
func CategorizeLink(url string) (types.LinkCategory, string) {
	u := strings.ToLower(url)

	switch {
	case strings.Contains(u, "github.com"):
		if strings.Contains(u, "/repositories") || strings.Contains(u, "/repos") {
			return types.LinkGitHub, "GitHub repositories"
		}
		return types.LinkGitHub, "GitHub profile/repository"
	case strings.Contains(u, "linkedin.com"):
		return types.LinkLinkedIn, "LinkedIn profile"
	case containsAny(u, researchPlatforms):
		return types.LinkResearchPublications, "Research/Publication platform"
	case containsAny(u, certificationPlatforms):
		return types.LinkCertifications, "Certification platform"
	case containsAny(u, socialPlatforms):
		return types.LinkSocialMedia, "Social media profile"
	case containsAny(u, portfolioHints) || strings.Count(u, ".") == 1:
		return types.LinkOther, "Personal website/portfolio"
	default:
		return types.LinkOther, "External link"
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
