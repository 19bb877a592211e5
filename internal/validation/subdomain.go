package validation

import (
	"regexp"
	"strings"

	"github.com/thakurlabs/thakur/internal/models"
)

// subdomainRegex validates subdomain format:
// - Must start and end with a lowercase letter or digit
// - Can contain lowercase letters, digits, and hyphens in between
var subdomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// MaxSubdomainLength is the maximum allowed length for a subdomain label.
const MaxSubdomainLength = 63

// reservedSubdomains can never be claimed by a project.
var reservedSubdomains = map[string]struct{}{
	"www":       {},
	"api":       {},
	"admin":     {},
	"dashboard": {},
	"deploy":    {},
	"git":       {},
	"db":        {},
	"mail":      {},
	"staging":   {},
	"dev":       {},
}

// IsReservedSubdomain reports whether s belongs to the reserved set.
func IsReservedSubdomain(s string) bool {
	_, ok := reservedSubdomains[s]
	return ok
}

// ValidateSubdomain validates that a subdomain label is well-formed and not
// reserved.
func ValidateSubdomain(s string) error {
	if s == "" {
		return &models.ValidationError{
			Field:   "subdomain",
			Message: "subdomain is required",
		}
	}

	if len(s) > MaxSubdomainLength {
		return &models.ValidationError{
			Field:   "subdomain",
			Message: "subdomain must be 63 characters or less",
		}
	}

	if !subdomainRegex.MatchString(s) {
		return &models.ValidationError{
			Field:   "subdomain",
			Message: "subdomain must contain only lowercase letters, numbers, and hyphens, and cannot start or end with a hyphen",
		}
	}

	if IsReservedSubdomain(s) {
		return &models.ValidationError{
			Field:   "subdomain",
			Message: "subdomain is reserved",
		}
	}

	return nil
}

// Slugify derives a subdomain candidate from a project name: lowercase,
// runs of non-alphanumerics collapsed to single hyphens, trimmed. The
// result may still collide with an existing or reserved subdomain; callers
// handle uniqueness.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // trims leading hyphens

	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	s := strings.TrimRight(b.String(), "-")
	if len(s) > MaxSubdomainLength {
		s = strings.TrimRight(s[:MaxSubdomainLength], "-")
	}
	return s
}
