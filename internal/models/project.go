package models

import "time"

// Project represents a deployable application bound to a Git repository.
// Every project owns a stable port on the deploy host; all of its
// deployments bind to that port.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	RepoURL        string    `json:"repo_url"`
	RepoID         int64     `json:"repo_id,omitempty"`
	RepoFullName   string    `json:"repo_full_name,omitempty"`
	DefaultBranch  string    `json:"default_branch"`
	RootDirectory  string    `json:"root_directory"`
	BuildCommand   string    `json:"build_command"`
	Framework      Framework `json:"framework"`
	Domain         *string   `json:"domain,omitempty"`
	Port           int       `json:"port"`
	InstallationID *int64    `json:"installation_id,omitempty"`
	AutoDeploy     bool      `json:"auto_deploy"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Subdomain returns the subdomain part of the project's domain, or "".
func (p *Project) Subdomain() string {
	if p.Domain == nil {
		return ""
	}
	d := *p.Domain
	for i := 0; i < len(d); i++ {
		if d[i] == '.' {
			return d[:i]
		}
	}
	return d
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
