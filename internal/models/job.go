package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BuildJobData is the queue payload consumed by the build worker. The
// record is closed: payloads carrying unknown fields are rejected at
// decode time.
type BuildJobData struct {
	BuildID        string            `json:"build_id"`
	ProjectID      string            `json:"project_id"`
	RepoURL        string            `json:"repo_url"`
	BuildCommand   string            `json:"build_command"`
	RootDirectory  string            `json:"root_directory"`
	Framework      Framework         `json:"framework"`
	EnvVars        map[string]string `json:"env_vars"`
	InstallationID *int64            `json:"installation_id,omitempty"`
}

// Validate checks that the job carries everything the worker needs.
func (j *BuildJobData) Validate() error {
	if j.BuildID == "" {
		return fmt.Errorf("build_id is required")
	}
	if j.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if j.RepoURL == "" {
		return fmt.Errorf("repo_url is required")
	}
	if !j.Framework.Valid() {
		return fmt.Errorf("unknown framework %q", j.Framework)
	}
	return nil
}

// DecodeBuildJobData parses a job payload, rejecting unknown fields.
func DecodeBuildJobData(data []byte) (*BuildJobData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var job BuildJobData
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("decoding build job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}
