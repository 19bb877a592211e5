// Package nginx manages per-subdomain reverse-proxy configuration on the
// deploy host. Configs are written atomically, validated, and nginx is
// reloaded; every operation is retried because reloads race with certbot
// renewals on busy hosts.
package nginx

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	reloadAttempts = 3
	reloadBackoff  = 300 * time.Millisecond
)

// Manager writes and reloads nginx site configs.
type Manager struct {
	sitesDir   string
	linkDir    string
	baseDomain string
	logger     *slog.Logger
}

// NewManager creates an nginx manager. sitesDir holds config files;
// linkDir holds the enabling symlinks (they may be the same directory).
func NewManager(sitesDir, linkDir, baseDomain string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sitesDir:   sitesDir,
		linkDir:    linkDir,
		baseDomain: baseDomain,
		logger:     logger,
	}
}

// siteConfig renders the proxy config for one subdomain: port 80 redirects
// to HTTPS, TLS terminates with the wildcard cert, and websocket upgrade
// headers pass through.
func (m *Manager) siteConfig(subdomain string, port int) string {
	host := subdomain + "." + m.baseDomain
	return fmt.Sprintf(`server {
    listen 80;
    server_name %s;

    return 301 https://$host$request_uri;
}

server {
    listen 443 ssl;
    server_name %s;

    ssl_certificate     /etc/letsencrypt/live/%s/fullchain.pem;
    ssl_certificate_key /etc/letsencrypt/live/%s/privkey.pem;

    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_ciphers HIGH:!aNULL:!MD5;

    location / {
        proxy_pass http://localhost:%d;
        proxy_http_version 1.1;

        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;

        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;

        proxy_read_timeout 300;
        proxy_connect_timeout 300;
        proxy_send_timeout 300;
    }
}
`, host, host, m.baseDomain, m.baseDomain, port)
}

// Apply writes the subdomain's config, links it if needed, and reloads.
func (m *Manager) Apply(subdomain string, port int) error {
	available := filepath.Join(m.sitesDir, subdomain+".conf")
	enabled := filepath.Join(m.linkDir, subdomain+".conf")

	if err := writeAtomic(available, []byte(m.siteConfig(subdomain, port))); err != nil {
		return fmt.Errorf("writing nginx config: %w", err)
	}

	if m.linkDir != m.sitesDir {
		if _, err := os.Lstat(enabled); os.IsNotExist(err) {
			if err := os.Symlink(available, enabled); err != nil {
				return fmt.Errorf("enabling nginx config: %w", err)
			}
		}
	}

	return m.Reload()
}

// Remove deletes the subdomain's config and reloads.
func (m *Manager) Remove(subdomain string) error {
	if m.linkDir != m.sitesDir {
		os.Remove(filepath.Join(m.linkDir, subdomain+".conf"))
	}
	os.Remove(filepath.Join(m.sitesDir, subdomain+".conf"))
	return m.Reload()
}

// EnsureCatchAll writes the default server that answers 404 for unknown
// subdomains, so traffic to deleted projects never falls through to
// another site.
func (m *Manager) EnsureCatchAll() error {
	content := fmt.Sprintf(`server {
    listen 80;
    server_name _ *.%s;
    add_header Content-Type text/plain;
    return 404 "Unknown subdomain. No project deployed.\n";
}

server {
    listen 443 ssl;
    server_name _ *.%s;

    ssl_certificate     /etc/letsencrypt/live/%s/fullchain.pem;
    ssl_certificate_key /etc/letsencrypt/live/%s/privkey.pem;

    add_header Content-Type text/plain;
    return 404 "Unknown subdomain. No project deployed.\n";
}
`, m.baseDomain, m.baseDomain, m.baseDomain, m.baseDomain)

	path := filepath.Join(m.sitesDir, "00-default.conf")
	if err := writeAtomic(path, []byte(content)); err != nil {
		return fmt.Errorf("writing catch-all config: %w", err)
	}
	return m.Reload()
}

// Reload validates the config and reloads nginx, retrying on failure.
func (m *Manager) Reload() error {
	var err error
	for attempt := 0; attempt < reloadAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(reloadBackoff)
		}
		if err = m.reloadOnce(); err == nil {
			return nil
		}
		m.logger.Warn("nginx reload failed", "attempt", attempt+1, "error", err)
	}
	return err
}

func (m *Manager) reloadOnce() error {
	if out, err := exec.Command("nginx", "-t").CombinedOutput(); err != nil {
		return fmt.Errorf("nginx config validation failed: %s", string(out))
	}
	if out, err := exec.Command("systemctl", "reload", "nginx").CombinedOutput(); err != nil {
		return fmt.Errorf("nginx reload failed: %s", string(out))
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
