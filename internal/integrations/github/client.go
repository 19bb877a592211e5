// Package github talks to the GitHub API on behalf of a GitHub App
// installation and verifies incoming webhook deliveries.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thakurlabs/thakur/internal/models"
)

const apiBase = "https://api.github.com"

// Client is a minimal GitHub App API client. The app-level JWT is minted
// per request; installation tokens are short-lived and never cached.
type Client struct {
	appID          string
	privateKeyPath string
	hc             *http.Client
}

// NewClient creates a GitHub client from app credentials. The private key
// file is read lazily so the client can be constructed before the key is
// provisioned.
func NewClient(appID, privateKeyPath string) *Client {
	return &Client{
		appID:          appID,
		privateKeyPath: privateKeyPath,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Configured reports whether app credentials are present.
func (c *Client) Configured() bool {
	return c.appID != "" && c.privateKeyPath != ""
}

// appJWT mints the app-level assertion: RS256, issued 60 s in the past to
// tolerate clock skew, valid for 10 minutes.
func (c *Client) appJWT() (string, error) {
	pem, err := os.ReadFile(c.privateKeyPath)
	if err != nil {
		return "", fmt.Errorf("reading app private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return "", fmt.Errorf("parsing app private key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Add(-60 * time.Second).Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
		"iss": c.appID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing app jwt: %w", err)
	}

	return signed, nil
}

// InstallationToken exchanges the app JWT for an installation access token.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	assertion, err := c.appJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", apiBase, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("installation token request failed: status %d", resp.StatusCode)
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	return tokenResp.Token, nil
}

// ListInstallationRepositories lists the repositories an installation
// grants access to.
func (c *Client) ListInstallationRepositories(ctx context.Context, installationID int64) ([]models.GitHubRepository, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/installation/repositories?per_page=100", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository listing failed: status %d", resp.StatusCode)
	}

	var result struct {
		Repositories []models.GitHubRepository `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding repository listing: %w", err)
	}

	return result.Repositories, nil
}
