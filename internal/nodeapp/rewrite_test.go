package nodeapp

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRewriteForBun(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{name: "npm install", command: "npm install", want: "bun install"},
		{name: "npm i", command: "npm i", want: "bun install"},
		{name: "npm ci", command: "npm ci", want: "bun install"},
		{name: "npm run build", command: "npm run build", want: "bun run build"},
		{name: "npm run with args", command: "npm run build --workspace=web", want: "bun run build --workspace=web"},
		{name: "bare yarn", command: "yarn", want: "bun install"},
		{name: "yarn install", command: "yarn install", want: "bun install"},
		{name: "yarn script", command: "yarn build", want: "bun run build"},
		{name: "yarn add untouched", command: "yarn add lodash", want: "yarn add lodash"},
		{name: "pnpm install", command: "pnpm install", want: "bun install"},
		{name: "pnpm run", command: "pnpm run build", want: "bun run build"},
		{name: "chained", command: "npm install && npm run build", want: "bun install && bun run build"},
		{name: "whitespace preserved", command: "  npm install  &&  npm run build  ", want: "  bun install  &&  bun run build  "},
		{name: "already bun", command: "bun install && bun run build", want: "bun install && bun run build"},
		{name: "unrelated command", command: "echo done", want: "echo done"},
		{name: "npm alone untouched", command: "npm", want: "npm"},
		{name: "empty", command: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RewriteForBun(tt.command); got != tt.want {
				t.Errorf("RewriteForBun(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}

func TestRewriteForBunIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genManager := gen.OneConstOf("npm", "yarn", "pnpm", "bun", "echo")
	genVerb := gen.OneConstOf("install", "i", "ci", "run", "build", "add", "")
	genScript := gen.OneConstOf("build", "compile", "dev", "start", "")

	genCommand := gopter.CombineGens(genManager, genVerb, genScript).Map(func(vs []interface{}) string {
		cmd := vs[0].(string)
		if vs[1].(string) != "" {
			cmd += " " + vs[1].(string)
		}
		if vs[2].(string) != "" {
			cmd += " " + vs[2].(string)
		}
		return cmd
	})

	properties.Property("rewriting twice equals rewriting once", prop.ForAll(
		func(a, b string) bool {
			cmd := a + " && " + b
			once := RewriteForBun(cmd)
			return RewriteForBun(once) == once
		},
		genCommand,
		genCommand,
	))

	properties.Property("segment count is preserved", prop.ForAll(
		func(a, b string) bool {
			cmd := a + " && " + b
			return countSegments(RewriteForBun(cmd)) == countSegments(cmd)
		},
		genCommand,
		genCommand,
	))

	properties.TestingRun(t)
}

func countSegments(cmd string) int {
	n := 1
	for i := 0; i+1 < len(cmd); i++ {
		if cmd[i] == '&' && cmd[i+1] == '&' {
			n++
			i++
		}
	}
	return n
}
