package storage

import "time"

// ResumeAnalyzedMessage 简历处理完成后发布的事件
type ResumeAnalyzedMessage struct {
	SessionID        string    `json:"session_id"`
	Username         string    `json:"username"`
	Filename         string    `json:"filename"`
	Status           string    `json:"status"`
	SectionCount     int       `json:"section_count"`
	VectorIndexed    bool      `json:"vector_indexed"`
	GitHubProfiles   []string  `json:"github_profiles,omitempty"`
	LinkedInFound    bool      `json:"linkedin_found"`
	ArchiveObjectKey string    `json:"archive_object_key,omitempty"`
	Error            string    `json:"error,omitempty"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
}
