package models

import "time"

// SourceInstallation records a GitHub App installation that grants the
// platform access to an account's repositories.
type SourceInstallation struct {
	ID             string    `json:"id"`
	InstallationID int64     `json:"installation_id"`
	AccountLogin   string    `json:"account_login"`
	AccountID      int64     `json:"account_id"`
	AccountType    string    `json:"account_type"` // "User" or "Organization"
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GitHubRepository represents a repository returned by the GitHub API.
type GitHubRepository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	Private       bool   `json:"private"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
}
