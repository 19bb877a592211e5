package docker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thakurlabs/thakur/internal/models"
)

// InternalPort returns the port the container listens on: 80 for static
// nginx images, 3000 for everything else.
func InternalPort(framework models.Framework) int {
	if framework == models.FrameworkVite {
		return viteInternalPort
	}
	return defaultInternalPort
}

// GenerateDockerfile produces a Dockerfile for projects that do not ship
// one. Vite output is served by nginx; everything else runs under bun.
func GenerateDockerfile(framework models.Framework, internalPort int, entryFile string) string {
	if framework == models.FrameworkVite {
		return `FROM nginx:alpine
COPY dist/ /usr/share/nginx/html
EXPOSE 80
CMD ["nginx", "-g", "daemon off;"]`
	}

	cmd := `CMD ["bun", "run", "start"]`
	if entryFile != "" {
		cmd = fmt.Sprintf(`CMD ["bun", "run", "%s"]`, entryFile)
	}

	return fmt.Sprintf(`FROM oven/bun:1-alpine AS builder
WORKDIR /app
COPY package.json ./
RUN bun install
COPY . .

FROM oven/bun:1-alpine
WORKDIR /app
COPY --from=builder /app .
ENV NODE_ENV=production
ENV PORT=%d
EXPOSE %d
%s`, internalPort, internalPort, cmd)
}

var portEnvRegex = regexp.MustCompile(`PORT\s*=?\s*\d+`)

// SanitizeDockerfile rewrites a user-supplied Dockerfile so the container
// listens on internalPort and carries no privilege-escalating instructions.
func SanitizeDockerfile(content string, internalPort int) string {
	lines := strings.Split(content, "\n")
	hasPortEnv := false
	hasExpose := false

	for i, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))

		if strings.HasPrefix(upper, "EXPOSE ") {
			hasExpose = true
			lines[i] = fmt.Sprintf("EXPOSE %d", internalPort)
		}

		if strings.HasPrefix(upper, "ENV ") && strings.Contains(upper, "PORT") {
			hasPortEnv = true
			lines[i] = portEnvRegex.ReplaceAllString(line, fmt.Sprintf("PORT=%d", internalPort))
		}

		if strings.Contains(upper, "USER ROOT") ||
			strings.Contains(upper, "--PRIVILEGED") ||
			strings.Contains(upper, "DOCKER.SOCK") {
			lines[i] = "# REMOVED FOR SECURITY: " + line
		}
	}

	if !hasExpose {
		lines = append(lines, fmt.Sprintf("EXPOSE %d", internalPort))
	}

	if !hasPortEnv {
		portEnv := fmt.Sprintf("ENV PORT=%d", internalPort)
		cmdIdx := -1
		for i, line := range lines {
			upper := strings.ToUpper(strings.TrimSpace(line))
			if strings.HasPrefix(upper, "CMD") || strings.HasPrefix(upper, "ENTRYPOINT") {
				cmdIdx = i
				break
			}
		}
		if cmdIdx > -1 {
			lines = append(lines[:cmdIdx], append([]string{portEnv}, lines[cmdIdx:]...)...)
		} else {
			lines = append(lines, portEnv)
		}
	}

	return strings.Join(lines, "\n")
}
