// Package config provides environment-based configuration for all three services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration shared by the control plane, the build worker,
// and the deploy engine. Each binary validates only the section it needs.
type Config struct {
	// Server configuration
	Port        int
	Host        string
	Environment string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Control plane
	DatabaseURL     string
	RedisURL        string
	EncryptionKey   string
	ClientURL       string
	DeployEngineURL string
	BuildWorkerURL  string
	BaseDomain      string

	// GitHub App
	GitHub GitHubConfig

	// Build worker
	Worker WorkerConfig

	// Deploy engine
	Engine EngineConfig
}

// GitHubConfig holds GitHub App credentials and webhook settings.
type GitHubConfig struct {
	AppID          string
	PrivateKeyPath string
	WebhookSecret  string
	ClientID       string
	ClientSecret   string
}

// WorkerConfig holds build worker-specific configuration.
type WorkerConfig struct {
	ControlAPIURL   string
	DeployEngineURL string
	WorkspaceDir    string
	BuildTimeout    time.Duration
}

// EngineConfig holds deploy engine-specific configuration.
type EngineConfig struct {
	ControlAPIURL string
	ArtifactsDir  string
	AppsDir       string
	UseDocker     bool
	NginxSitesDir string
	NginxLinkDir  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getIntEnv("PORT", 3000),
		Host:            getEnv("HOST", "0.0.0.0"),
		Environment:     getEnv("NODE_ENV", "development"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		ClientURL:       getEnv("CLIENT_URL", "http://localhost:5173"),
		DeployEngineURL: getEnv("DEPLOY_ENGINE_URL", "http://localhost:4000"),
		BuildWorkerURL:  getEnv("BUILD_WORKER_URL", "http://localhost:5000"),
		BaseDomain:      getEnv("BASE_DOMAIN", ""),
		GitHub: GitHubConfig{
			AppID:          getEnv("GITHUB_APP_ID", ""),
			PrivateKeyPath: getEnv("GITHUB_APP_PRIVATE_KEY_PATH", ""),
			WebhookSecret:  getEnv("GITHUB_WEBHOOK_SECRET", ""),
			ClientID:       getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret:   getEnv("GITHUB_CLIENT_SECRET", ""),
		},
		Worker: WorkerConfig{
			ControlAPIURL:   getEnv("CONTROL_API_URL", "http://localhost:3000"),
			DeployEngineURL: getEnv("DEPLOY_ENGINE_URL", "http://localhost:4000"),
			WorkspaceDir:    getEnv("WORKSPACE_DIR", "workspace"),
			BuildTimeout:    getDurationEnv("BUILD_TIMEOUT", 5*time.Minute),
		},
		Engine: EngineConfig{
			ControlAPIURL: getEnv("CONTROL_API_URL", "http://localhost:3000"),
			ArtifactsDir:  getEnv("ARTIFACTS_DIR", "/tmp/deploy-artifacts"),
			AppsDir:       getEnv("APPS_DIR", "./apps"),
			UseDocker:     getBoolEnv("USE_DOCKER", false),
			NginxSitesDir: getEnv("NGINX_SITES_DIR", "/etc/nginx/sites-available"),
			NginxLinkDir:  getEnv("NGINX_ENABLED_DIR", "/etc/nginx/sites-enabled"),
		},
	}

	return cfg, nil
}

// ValidateAPI checks the configuration required by the control plane.
func (c *Config) ValidateAPI() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len([]byte(c.EncryptionKey)) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len([]byte(c.EncryptionKey)))
	}
	return nil
}

// ValidateWorker checks the configuration required by the build worker.
func (c *Config) ValidateWorker() error {
	if c.Worker.ControlAPIURL == "" {
		return fmt.Errorf("CONTROL_API_URL is required")
	}
	if c.Worker.DeployEngineURL == "" {
		return fmt.Errorf("DEPLOY_ENGINE_URL is required")
	}
	return nil
}

// ValidateEngine checks the configuration required by the deploy engine.
func (c *Config) ValidateEngine() error {
	if c.Engine.ArtifactsDir == "" {
		return fmt.Errorf("ARTIFACTS_DIR is required")
	}
	if c.Engine.AppsDir == "" {
		return fmt.Errorf("APPS_DIR is required")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg, _ := Load()
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "postgres://localhost:5432/thakur?sslmode=disable"
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = "development-encryption-key-32-by"
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
