package models

import "time"

// EnvVar is a project-scoped environment variable. The value is stored
// authenticated-encrypted and only decrypted when building a job payload or
// serving the project's env listing.
type EnvVar struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Key             string    `json:"key"`
	ValueCiphertext string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
