package nodeapp

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// entryScriptRegex pulls the script file out of a dev/start command such as
// "bun run --watch src/index.ts" or "nodemon server.js".
var entryScriptRegex = regexp.MustCompile(`(?:bun|node|tsx|ts-node|nodemon)\s+(?:run\s+)?(?:watch\s+)?(\S+\.(?:ts|js))`)

// compileIndicators mark a build script that emits compiled output rather
// than just type-checking or linting.
var compileIndicators = []string{
	"tsc",
	"esbuild",
	"swc",
	"rollup",
	"webpack",
	"parcel",
	"vite build",
	"next build",
	"tsup",
	"unbuild",
	"ncc",
}

var runBuildRegex = regexp.MustCompile(`(npm|bun|yarn|pnpm) run build`)

// HasCompileStep reports whether a build script produces compiled output.
// Backends without one ship their source directly.
func HasCompileStep(buildScript string) bool {
	if buildScript == "" {
		return false
	}
	for _, indicator := range compileIndicators {
		if strings.Contains(buildScript, indicator) {
			return true
		}
	}
	return runBuildRegex.MatchString(buildScript)
}

// commonEntries are checked last, in order, when nothing else names the
// server entry file.
var commonEntries = []string{
	"src/index.ts",
	"src/index.js",
	"src/server.ts",
	"src/server.js",
	"index.ts",
	"index.js",
	"server.ts",
	"server.js",
	"src/app.ts",
	"src/app.js",
}

// DetectEntryFile resolves the file a backend server starts from, relative
// to dir. The search order: the dev script's invocation, package.json main,
// compiled output under dist/ then src/, the start script's invocation,
// then a fixed list of conventional paths. Returns "" when nothing matches.
func DetectEntryFile(dir string, pkg *PackageJSON) string {
	if entry := scriptEntry(dir, pkg.Script("dev")); entry != "" {
		return entry
	}

	if pkg != nil && pkg.Main != "" && fileExists(filepath.Join(dir, pkg.Main)) {
		return pkg.Main
	}

	for _, sub := range []string{"dist", "src"} {
		for _, ext := range []string{".js", ".ts"} {
			for _, base := range []string{"index", "server", "app"} {
				rel := filepath.Join(sub, base+ext)
				if fileExists(filepath.Join(dir, rel)) {
					return rel
				}
			}
		}
	}

	if entry := scriptEntry(dir, pkg.Script("start")); entry != "" {
		return entry
	}

	for _, rel := range commonEntries {
		if fileExists(filepath.Join(dir, rel)) {
			return rel
		}
	}

	return ""
}

// scriptEntry extracts the entry file referenced by a script command,
// requiring that the file actually exists.
func scriptEntry(dir, script string) string {
	if script == "" {
		return ""
	}
	m := entryScriptRegex.FindStringSubmatch(script)
	if m == nil {
		return ""
	}
	if !fileExists(filepath.Join(dir, m[1])) {
		return ""
	}
	return m[1]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
