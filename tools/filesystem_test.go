package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "")
	writeFile(t, filepath.Join(dir, "a", "x.go"), "")
	writeFile(t, filepath.Join(dir, "secret.pem"), "")

	tool := &ListFilesTool{guard: &PathGuard{Hidden: []string{"**/*.pem"}, Root: dir}}
	out, err := tool.Execute(context.Background(), map[string]interface{}{"path": dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "[DIR]  a\n[FILE] b.txt" {
		t.Errorf("unexpected listing:\n%s", out)
	}

	empty := t.TempDir()
	out, err = tool.Execute(context.Background(), map[string]interface{}{"path": empty})
	if err != nil || out != "(empty directory)" {
		t.Errorf("empty dir: %q, %v", out, err)
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"path": filepath.Join(dir, "nope")}); err == nil {
		t.Errorf("expected error for a missing directory")
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	writeFile(t, path, "one\ntwo\nthree\nfour\n")
	tool := &ReadFileTool{}

	tests := []struct {
		name    string
		args    map[string]interface{}
		want    string
		wantErr bool
	}{
		{"whole", map[string]interface{}{"path": path}, "one\ntwo\nthree\nfour\n", false},
		{"range", map[string]interface{}{"path": path, "start_line": float64(2), "end_line": float64(3)}, "[Lines 2-3 of 4]\ntwo\nthree\n", false},
		{"open end", map[string]interface{}{"path": path, "start_line": float64(4)}, "[Lines 4-4 of 4]\nfour\n", false},
		{"end clamped", map[string]interface{}{"path": path, "end_line": float64(10)}, "[Lines 1-4 of 4]\none\ntwo\nthree\nfour\n", false},
		{"start past end", map[string]interface{}{"path": path, "start_line": float64(9)}, "", true},
		{"missing path", map[string]interface{}{}, "", true},
		{"missing file", map[string]interface{}{"path": filepath.Join(dir, "nope")}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Execute(context.Background(), tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	bin := filepath.Join(dir, "bin")
	writeFile(t, bin, string([]byte{0xff, 0xfe, 0x00}))
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"path": bin}); err == nil {
		t.Errorf("expected an error for binary content")
	}
}

func TestWriteFileRespectsGuard(t *testing.T) {
	dir := t.TempDir()
	guard := &PathGuard{Hidden: []string{".quill/**"}, ReadOnly: []string{"locked/**"}, Root: dir}
	tool := &WriteFileTool{guard: guard}

	path := filepath.Join(dir, "nested", "out.txt")
	out, err := tool.Execute(context.Background(), map[string]interface{}{"path": path, "content": "hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out, "Successfully wrote 5 bytes") || readFile(t, path) != "hello" {
		t.Errorf("unexpected result %q", out)
	}

	for _, rel := range []string{".quill/config.yaml", "locked/file.txt"} {
		if _, err := tool.Execute(context.Background(), map[string]interface{}{"path": filepath.Join(dir, rel), "content": "x"}); err == nil {
			t.Errorf("write to %s should be refused", rel)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "locked")); !os.IsNotExist(err) {
		t.Errorf("refused write must not create directories")
	}
}

func TestEditFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	writeFile(t, path, "a := 1\nb := 2\nb := 2\n")
	tool := &EditFileTool{}
	ctx := context.Background()

	if _, err := tool.Execute(ctx, map[string]interface{}{"path": path, "old_string": "b := 2", "new_string": "b := 3"}); err == nil ||
		!strings.Contains(err.Error(), "matches 2 times") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
	if _, err := tool.Execute(ctx, map[string]interface{}{"path": path, "old_string": "zzz", "new_string": "y"}); err == nil {
		t.Errorf("expected not-found error")
	}

	out, err := tool.Execute(ctx, map[string]interface{}{"path": path, "old_string": "a := 1\n", "new_string": "a := 10\nc := 4\n"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasSuffix(out, "replaced 2 lines with 3 lines") {
		t.Errorf("unexpected summary %q", out)
	}
	if got := readFile(t, path); got != "a := 10\nc := 4\nb := 2\nb := 2\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestDeleteMoveCopy(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	src := filepath.Join(dir, "src.txt")
	writeFile(t, src, "data")
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	copyTool := &CopyFileTool{}
	out, err := copyTool.Execute(ctx, map[string]interface{}{"source": src, "destination": sub})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	copied := filepath.Join(sub, "src.txt")
	if out != "Copied: "+src+" -> "+copied || readFile(t, copied) != "data" {
		t.Errorf("unexpected copy result %q", out)
	}
	if _, err := copyTool.Execute(ctx, map[string]interface{}{"source": src, "destination": src}); err == nil {
		t.Errorf("copying a file onto itself should fail")
	}

	moved := filepath.Join(dir, "moved.txt")
	if _, err := (&MoveFileTool{}).Execute(ctx, map[string]interface{}{"source": src, "destination": moved}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source should be gone after move")
	}

	del := &DeleteFileTool{}
	if _, err := del.Execute(ctx, map[string]interface{}{"path": sub}); err == nil {
		t.Errorf("deleting a directory should be refused")
	}
	out, err = del.Execute(ctx, map[string]interface{}{"path": moved})
	if err != nil || out != "Deleted: "+moved {
		t.Errorf("delete: %q, %v", out, err)
	}
}

func TestFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	writeFile(t, path, strings.Repeat("x", 2048))
	out, err := (&FileInfoTool{}).Execute(context.Background(), map[string]interface{}{"path": path})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"Type: file", "Size: 2.0 KB (2048 bytes)", "Permissions: 644"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	out, _ = (&FileInfoTool{}).Execute(context.Background(), map[string]interface{}{"path": dir})
	if !strings.Contains(out, "Type: directory") {
		t.Errorf("expected directory type:\n%s", out)
	}
}
