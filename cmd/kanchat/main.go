package main

import (
	"os"
	"strings"

	"kanchat-cli/internal/cli"
)

// isBoardRef reports whether s looks like a board id typed as a bare argument
// ("12" or "#12").
func isBoardRef(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func rewriteBoardShortcutArgs(argv []string) []string {
	// Convenience: `kanchat 12` opens the board view like `kanchat --board 12`.
	//
	// Cobra treats the first non-flag token as a subcommand, so argv is rewritten
	// before parsing. Persistent flags may come first (`kanchat --api ... 12`), so
	// look for the first positional token, not just argv[1].
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--api":         true,
		"--board":       true,
		"--status-mode": true,
		"--format":      true,
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isBoardRef(argv[i+1]) {
				out := make([]string, 0, len(argv)+1)
				out = append(out, argv[:i]...)
				out = append(out, "--board", strings.TrimPrefix(strings.TrimSpace(argv[i+1]), "#"))
				return append(out, argv[i+2:]...)
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++ // skip value if present
			}
			continue
		}

		// First positional token.
		if isBoardRef(a) {
			out := make([]string, 0, len(argv)+1)
			out = append(out, argv[:i]...)
			out = append(out, "--board", strings.TrimPrefix(a, "#"))
			return append(out, argv[i+1:]...)
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewriteBoardShortcutArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
