package models

// Framework identifies how a project is built and started.
type Framework string

const (
	FrameworkNextJS  Framework = "nextjs"
	FrameworkVite    Framework = "vite"
	FrameworkExpress Framework = "express"
	FrameworkHono    Framework = "hono"
	FrameworkElysia  Framework = "elysia"
)

// Frameworks lists every supported framework.
var Frameworks = []Framework{
	FrameworkNextJS,
	FrameworkVite,
	FrameworkExpress,
	FrameworkHono,
	FrameworkElysia,
}

// Valid reports whether f is a supported framework.
func (f Framework) Valid() bool {
	switch f {
	case FrameworkNextJS, FrameworkVite, FrameworkExpress, FrameworkHono, FrameworkElysia:
		return true
	}
	return false
}

// IsFrontend reports whether f produces static or pre-rendered output
// built with an install + build step.
func (f Framework) IsFrontend() bool {
	return f == FrameworkNextJS || f == FrameworkVite
}

// IsBackend reports whether f is a long-running server framework.
func (f Framework) IsBackend() bool {
	return f == FrameworkExpress || f == FrameworkHono || f == FrameworkElysia
}
