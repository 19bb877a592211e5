package nodeapp

import "strings"

// RewriteForBun normalizes a shell command so every package-manager
// invocation runs under bun. The command is split on "&&" and each segment
// rewritten independently; segments already using bun pass through, so the
// rewrite is idempotent.
func RewriteForBun(command string) string {
	if command == "" {
		return ""
	}

	segments := strings.Split(command, "&&")
	for i, seg := range segments {
		segments[i] = rewriteSegment(seg)
	}
	return strings.Join(segments, "&&")
}

func rewriteSegment(segment string) string {
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return segment
	}

	fields := strings.Fields(trimmed)
	rewritten := rewriteFields(fields)
	if rewritten == nil {
		return segment
	}

	// Preserve surrounding whitespace so joined segments read naturally.
	leading := segment[:strings.Index(segment, trimmed)]
	trailing := segment[strings.Index(segment, trimmed)+len(trimmed):]
	return leading + strings.Join(rewritten, " ") + trailing
}

func rewriteFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "npm":
		if len(fields) >= 2 {
			switch fields[1] {
			case "install", "i", "ci":
				return append([]string{"bun", "install"}, fields[2:]...)
			case "run":
				if len(fields) >= 3 {
					return append([]string{"bun", "run"}, fields[2:]...)
				}
			}
		}
	case "yarn":
		if len(fields) == 1 {
			return []string{"bun", "install"}
		}
		switch fields[1] {
		case "install":
			return append([]string{"bun", "install"}, fields[2:]...)
		case "add", "remove":
			// Dependency mutations are left alone.
		default:
			return append([]string{"bun", "run"}, fields[1:]...)
		}
	case "pnpm":
		if len(fields) >= 2 {
			switch fields[1] {
			case "install", "i":
				return append([]string{"bun", "install"}, fields[2:]...)
			case "run":
				if len(fields) >= 3 {
					return append([]string{"bun", "run"}, fields[2:]...)
				}
			}
		}
	}

	return nil
}
