// Package ignore builds the path-exclusion predicate handed to the
// catalog scanner, from gitignore-style rule files plus built-in
// defaults.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultPatterns are always excluded, on top of any rule files.
var defaultPatterns = []string{
	".git/",
	".svn/",
	".hg/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".idea/",
	".vscode/",
	".ragrep/",
	"dist/",
	"build/",
	"venv/",
	".venv/",
	"*.db",
	"*.sqlite",
	"*.sqlite3",
	"*.log",
	"*.tmp",
	"*.bak",
}

// Predicate reports whether a root-relative path should be excluded
// from indexing.
type Predicate func(relPath string) bool

// FromRoot compiles a predicate from <root>/.gitignore and
// <root>/.ragrepignore (both optional) plus the default patterns.
func FromRoot(root string) Predicate {
	patterns := append([]string{}, defaultPatterns...)
	for _, name := range []string{".gitignore", ".ragrepignore"} {
		patterns = append(patterns, readPatterns(filepath.Join(root, name))...)
	}
	matcher := gitignore.CompileIgnoreLines(patterns...)
	return matcher.MatchesPath
}

// readPatterns loads one rule file, dropping blanks and comments.
// A missing file is not an error.
func readPatterns(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}
