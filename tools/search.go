package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/quill/errors"
)

const (
	defaultFindResults = 100
	defaultGrepResults = 50
)

// FindFilesTool finds files whose name matches a glob.
type FindFilesTool struct {
	guard *PathGuard
}

func (t *FindFilesTool) Name() string           { return "find_files" }
func (t *FindFilesTool) SideEffect() SideEffect { return ReadOnly }
func (t *FindFilesTool) Description() string {
	return "Finds files by glob pattern. Patterns without a slash match file names " +
		"(e.g. *_test.go); patterns with a slash match paths relative to the search root (e.g. cmd/**/*.go). " +
		"Hidden directories are skipped."
}
func (t *FindFilesTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"pattern":     str("Glob pattern to search for"),
			"path":        str("Directory to search in (default: current directory)"),
			"max_results": num(fmt.Sprintf("Maximum number of results (default: %d)", defaultFindResults)),
		},
		Required: []string{"pattern"},
	}
}

func (t *FindFilesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, _ := stringArg(args, "pattern")
	if pattern == "" {
		return "", errors.New("missing or invalid 'pattern' argument")
	}
	if !doublestar.ValidatePattern(pattern) {
		return "", errors.New("invalid glob pattern '%s'", pattern)
	}
	root, _ := stringArg(args, "path")
	if root == "" {
		root = "."
	}
	limit := intArg(args, "max_results", defaultFindResults)
	if err := t.guard.CheckRead(root); err != nil {
		return "", err
	}

	var results []string
	byPath := strings.Contains(pattern, "/")
	err := walk(ctx, t.guard, root, func(path, rel string) bool {
		subject := filepath.Base(path)
		if byPath {
			subject = rel
		}
		if ok, _ := doublestar.Match(pattern, subject); ok {
			results = append(results, path)
		}
		return len(results) < limit
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No files found matching '%s'", pattern), nil
	}
	out := strings.Join(results, "\n")
	if len(results) >= limit {
		out += fmt.Sprintf("\n... (truncated at %d results)", limit)
	}
	return out, nil
}

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	guard *PathGuard
}

func (t *GrepTool) Name() string           { return "grep" }
func (t *GrepTool) SideEffect() SideEffect { return ReadOnly }
func (t *GrepTool) Description() string {
	return "Searches file contents with a regular expression and reports path:line: text. Hidden directories are skipped."
}
func (t *GrepTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"pattern":     str("Regex pattern to search for"),
			"path":        str("Directory to search in (default: current directory)"),
			"include":     str("File name glob filter (e.g. *.go)"),
			"max_results": num(fmt.Sprintf("Maximum number of results (default: %d)", defaultGrepResults)),
		},
		Required: []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, _ := stringArg(args, "pattern")
	if pattern == "" {
		return "", errors.New("missing or invalid 'pattern' argument")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "invalid regex pattern")
	}
	include, _ := stringArg(args, "include")
	root, _ := stringArg(args, "path")
	if root == "" {
		root = "."
	}
	limit := intArg(args, "max_results", defaultGrepResults)
	if err := t.guard.CheckRead(root); err != nil {
		return "", err
	}

	var results []string
	searched := 0
	err = walk(ctx, t.guard, root, func(path, rel string) bool {
		if include != "" {
			if ok, _ := doublestar.Match(include, filepath.Base(path)); !ok {
				return true
			}
		}
		searched++
		results = grepFile(path, re, results, limit)
		return len(results) < limit
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No matches found (searched %d files)", searched), nil
	}
	out := strings.Join(results, "\n")
	if len(results) >= limit {
		out += fmt.Sprintf("\n... (truncated at %d results)", limit)
	}
	return out, nil
}

func grepFile(path string, re *regexp.Regexp, results []string, limit int) []string {
	f, err := os.Open(path)
	if err != nil {
		return results
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !utf8.ValidString(text) {
			return results
		}
		if re.MatchString(text) {
			results = append(results, fmt.Sprintf("%s:%d: %s", path, line, strings.TrimRight(text, " \t\r")))
			if len(results) >= limit {
				return results
			}
		}
	}
	return results
}

// walk visits regular files under root, skipping dot-directories and hidden
// paths. visit returns false to stop the walk.
func walk(ctx context.Context, guard *PathGuard, root string, visit func(path, rel string) bool) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if path != root && guard.IsHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || guard.IsHidden(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if !visit(path, filepath.ToSlash(rel)) {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to search '%s'", root)
	}
	return nil
}
