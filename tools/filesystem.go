package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/m4xw311/quill/errors"
)

// ListFilesTool lists the entries of a directory.
type ListFilesTool struct {
	guard *PathGuard
}

func (t *ListFilesTool) Name() string           { return "list_files" }
func (t *ListFilesTool) SideEffect() SideEffect { return ReadOnly }
func (t *ListFilesTool) Description() string {
	return "Lists files and directories at the given path (default: current directory)."
}
func (t *ListFilesTool) Schema() Schema {
	return Schema{Properties: map[string]Property{
		"path": str("Directory to list (default: current directory)"),
	}}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := stringArg(args, "path")
	if path == "" {
		path = "."
	}
	if err := t.guard.CheckRead(path); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list directory '%s'", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var lines []string
	for _, e := range entries {
		if t.guard.IsHidden(filepath.Join(path, e.Name())) {
			continue
		}
		if e.IsDir() {
			lines = append(lines, "[DIR]  "+e.Name())
		} else {
			lines = append(lines, "[FILE] "+e.Name())
		}
	}
	if len(lines) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(lines, "\n"), nil
}

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct {
	guard *PathGuard
}

func (t *ReadFileTool) Name() string           { return "read_file" }
func (t *ReadFileTool) SideEffect() SideEffect { return ReadOnly }
func (t *ReadFileTool) Description() string {
	return "Reads a text file. Optionally restrict to a 1-based inclusive line range."
}
func (t *ReadFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"path":       str("Path of the file to read"),
			"start_line": num("First line to read, 1-based (optional)"),
			"end_line":   num("Last line to read, inclusive (optional)"),
		},
		Required: []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", errors.New("missing or invalid 'path' argument")
	}
	if err := t.guard.CheckRead(path); err != nil {
		return "", err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	if !utf8.Valid(content) {
		return "", errors.New("cannot decode file (binary?): %s", path)
	}

	_, hasStart := args["start_line"]
	_, hasEnd := args["end_line"]
	if !hasStart && !hasEnd {
		return string(content), nil
	}

	lines := strings.SplitAfter(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)
	start := intArg(args, "start_line", 1) - 1
	if start < 0 {
		start = 0
	}
	end := intArg(args, "end_line", total)
	if end > total {
		end = total
	}
	if start >= total {
		return "", errors.New("start_line (%d) exceeds total lines (%d)", start+1, total)
	}
	if end < start {
		end = start
	}
	selected := lines[start:end]
	header := fmt.Sprintf("[Lines %d-%d of %d]\n", start+1, start+len(selected), total)
	return header + strings.Join(selected, ""), nil
}

// WriteFileTool implements the tool for writing to a file.
type WriteFileTool struct {
	guard *PathGuard
}

func (t *WriteFileTool) Name() string           { return "write_file" }
func (t *WriteFileTool) SideEffect() SideEffect { return Mutating }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Parent directories are created."
}
func (t *WriteFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"path":    str("Path of the file to write"),
			"content": str("Full content of the file"),
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, pathOk := stringArg(args, "path")
	content, contentOk := stringArg(args, "content")
	if !pathOk || !contentOk || path == "" {
		return "", errors.New("missing or invalid 'path' or 'content' arguments")
	}
	if err := t.guard.CheckWrite(path); err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.Wrapf(err, "failed to create directory '%s'", dir)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool replaces one unique occurrence of a string in a file.
type EditFileTool struct {
	guard *PathGuard
}

func (t *EditFileTool) Name() string           { return "edit_file" }
func (t *EditFileTool) SideEffect() SideEffect { return Mutating }
func (t *EditFileTool) Description() string {
	return "Replaces exactly one occurrence of old_string with new_string in a file. " +
		"old_string must match uniquely; include surrounding lines to disambiguate."
}
func (t *EditFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"path":       str("Path of the file to edit"),
			"old_string": str("Exact text to replace"),
			"new_string": str("Replacement text"),
		},
		Required: []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := stringArg(args, "path")
	oldStr, oldOk := stringArg(args, "old_string")
	newStr, newOk := stringArg(args, "new_string")
	if path == "" || !oldOk || !newOk {
		return "", errors.New("missing or invalid 'path', 'old_string' or 'new_string' arguments")
	}
	if oldStr == "" {
		return "", errors.New("old_string must not be empty")
	}
	if err := t.guard.CheckWrite(path); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	content := string(data)
	switch n := strings.Count(content, oldStr); {
	case n == 0:
		return "", errors.New("old_string not found in %s", path)
	case n > 1:
		return "", errors.New("old_string matches %d times. Please provide more context to make it unique.", n)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat '%s'", path)
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	oldLines := strings.Count(oldStr, "\n") + 1
	newLines := strings.Count(newStr, "\n") + 1
	return fmt.Sprintf("Successfully edited %s: replaced %d lines with %d lines", path, oldLines, newLines), nil
}

// DeleteFileTool removes a single file.
type DeleteFileTool struct {
	guard *PathGuard
}

func (t *DeleteFileTool) Name() string           { return "delete_file" }
func (t *DeleteFileTool) SideEffect() SideEffect { return Destructive }
func (t *DeleteFileTool) Description() string    { return "Deletes a file. Directories are refused." }
func (t *DeleteFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{"path": str("Path of the file to delete")},
		Required:   []string{"path"},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := stringArg(args, "path")
	if path == "" {
		return "", errors.New("missing or invalid 'path' argument")
	}
	if err := t.guard.CheckWrite(path); err != nil {
		return "", err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to delete '%s'", path)
	}
	if info.IsDir() {
		return "", errors.New("is a directory: %s", path)
	}
	if err := os.Remove(path); err != nil {
		return "", errors.Wrapf(err, "failed to delete '%s'", path)
	}
	return "Deleted: " + path, nil
}

// MoveFileTool renames a file or directory.
type MoveFileTool struct {
	guard *PathGuard
}

func (t *MoveFileTool) Name() string           { return "move_file" }
func (t *MoveFileTool) SideEffect() SideEffect { return Mutating }
func (t *MoveFileTool) Description() string {
	return "Moves or renames a file or directory. A destination directory receives the source by name."
}
func (t *MoveFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"source":      str("Existing path"),
			"destination": str("New path or existing directory"),
		},
		Required: []string{"source", "destination"},
	}
}

func (t *MoveFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	src, dst, err := sourceAndDestination(t.guard, args, true)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", errors.Wrapf(err, "failed to move '%s'", src)
	}
	return fmt.Sprintf("Moved: %s -> %s", src, dst), nil
}

// CopyFileTool copies a regular file.
type CopyFileTool struct {
	guard *PathGuard
}

func (t *CopyFileTool) Name() string           { return "copy_file" }
func (t *CopyFileTool) SideEffect() SideEffect { return Mutating }
func (t *CopyFileTool) Description() string {
	return "Copies a file, preserving its permissions. A destination directory receives the file by name."
}
func (t *CopyFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"source":      str("File to copy"),
			"destination": str("Target path or existing directory"),
		},
		Required: []string{"source", "destination"},
	}
}

func (t *CopyFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	src, dst, err := sourceAndDestination(t.guard, args, false)
	if err != nil {
		return "", err
	}
	if sameFile(src, dst) {
		return "", errors.New("source and destination are the same file")
	}
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open '%s'", src)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat '%s'", src)
	}
	if info.IsDir() {
		return "", errors.New("source is a directory: %s", src)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return "", errors.Wrapf(err, "failed to create '%s'", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", errors.Wrapf(err, "failed to copy '%s'", src)
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to copy '%s'", src)
	}
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return fmt.Sprintf("Copied: %s -> %s", src, dst), nil
}

func sourceAndDestination(guard *PathGuard, args map[string]interface{}, sourceWritten bool) (string, string, error) {
	src, _ := stringArg(args, "source")
	dst, _ := stringArg(args, "destination")
	if src == "" || dst == "" {
		return "", "", errors.New("missing or invalid 'source' or 'destination' arguments")
	}
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	check := guard.CheckRead
	if sourceWritten {
		check = guard.CheckWrite
	}
	if err := check(src); err != nil {
		return "", "", err
	}
	if err := guard.CheckWrite(dst); err != nil {
		return "", "", err
	}
	return src, dst, nil
}

func sameFile(a, b string) bool {
	fa, err := os.Stat(a)
	if err != nil {
		return false
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(fa, fb)
}

// FileInfoTool reports metadata about a path.
type FileInfoTool struct {
	guard *PathGuard
}

func (t *FileInfoTool) Name() string           { return "file_info" }
func (t *FileInfoTool) SideEffect() SideEffect { return ReadOnly }
func (t *FileInfoTool) Description() string {
	return "Shows type, size, modification time and permissions of a path."
}
func (t *FileInfoTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{"path": str("Path to inspect")},
		Required:   []string{"path"},
	}
}

func (t *FileInfoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := stringArg(args, "path")
	if path == "" {
		return "", errors.New("missing or invalid 'path' argument")
	}
	if err := t.guard.CheckRead(path); err != nil {
		return "", err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat '%s'", path)
	}

	kind := "other"
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		kind = "symlink"
	case info.IsDir():
		kind = "directory"
	case info.Mode().IsRegular():
		kind = "file"
	}

	return fmt.Sprintf("Path: %s\nType: %s\nSize: %s (%d bytes)\nModified: %s\nPermissions: %o",
		path, kind, humanSize(info.Size()), info.Size(),
		info.ModTime().Format("2006-01-02 15:04:05"), info.Mode().Perm()), nil
}

func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
