package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const areaText = `The area is $A=\pi r^2$ square units`

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runCLI(t, "")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, out, "Usage:")

	code, out, _ = runCLI(t, "", "frobnicate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, out, "Unknown command: frobnicate")

	code, _, _ = runCLI(t, "", "help")
	assert.Equal(t, exitOK, code)
}

func TestEditCommand(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{
			name:     "missing arguments",
			args:     []string{"edit", "-", "1"},
			wantCode: exitUsage,
			wantOut:  "Usage: mathedit edit",
		},
		{
			name:     "only the write flag",
			args:     []string{"edit", "-", "1", "--write"},
			wantCode: exitUsage,
			wantOut:  "Usage: mathedit edit",
		},
		{
			name:     "non-numeric index",
			args:     []string{"edit", "-", "one", "x"},
			wantCode: exitUsage,
			wantOut:  `invalid index "one"`,
		},
		{
			name:     "replaces math from stdin",
			stdin:    areaText,
			args:     []string{"edit", "-", "1", `A = \pi r^{2}`},
			wantCode: exitOK,
			wantOut:  `The area is $A = \pi r^2$ square units`,
		},
		{
			name:     "content split over arguments",
			stdin:    areaText,
			args:     []string{"edit", "-", "1", "A", "=", "2"},
			wantCode: exitOK,
			wantOut:  `The area is $A = 2$ square units`,
		},
		{
			name:     "text segment is rejected",
			stdin:    areaText,
			args:     []string{"edit", "-", "0", "x"},
			wantCode: exitUsage,
			wantOut:  "Error:",
		},
		{
			name:     "index out of range",
			stdin:    areaText,
			args:     []string{"edit", "-", "9", "x"},
			wantCode: exitUsage,
			wantOut:  "Error:",
		},
		{
			name:     "invalid edit is applied with a warning",
			stdin:    areaText,
			args:     []string{"edit", "-", "1", "{a"},
			wantCode: exitOK,
			wantOut:  "The area is ${a$ square units",
			wantErr:  "warning: Unbalanced braces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runCLI(t, tt.stdin, tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, out, tt.wantOut)
			if tt.wantErr != "" {
				assert.Contains(t, errOut, tt.wantErr)
			}
		})
	}
}

func TestEditCommandWritesFile(t *testing.T) {
	path := writeTemp(t, "notes.md", []byte(areaText))

	code, out, _ := runCLI(t, "", "edit", path, "1", "--write", `A = \pi r^{2}`)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Segment 1 updated")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `The area is $A = \pi r^2$ square units`, string(data))
}

func TestSegmentsCommand(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
		wantOut  []string
	}{
		{
			name:     "missing source",
			args:     []string{"segments"},
			wantCode: exitUsage,
			wantOut:  []string{"Usage: mathedit segments"},
		},
		{
			name:     "missing file",
			args:     []string{"segments", filepath.Join(t.TempDir(), "absent.md")},
			wantCode: exitUsage,
			wantOut:  []string{"Error:"},
		},
		{
			name:     "mixed text",
			stdin:    areaText,
			args:     []string{"segments", "-"},
			wantCode: exitOK,
			wantOut:  []string{"math $", "[12,23)", "3 segments, 1 math"},
		},
		{
			name:     "environment block",
			stdin:    `M = \begin{matrix}a\end{matrix}`,
			args:     []string{"segments", "-"},
			wantCode: exitOK,
			wantOut:  []string{"math matrix", "2 segments, 1 math"},
		},
		{
			name:     "empty input",
			args:     []string{"segments", "-"},
			wantCode: exitOK,
			wantOut:  []string{"0 segments, 0 math"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := runCLI(t, tt.stdin, tt.args...)
			assert.Equal(t, tt.wantCode, code)
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestEncodingCommand(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"utf8.tex":  []byte("$x$"),
		"bom.tex":   append([]byte{0xEF, 0xBB, 0xBF}, "$x$"...),
		"utf16.tex": {0xFF, 0xFE, '$', 0, 'x', 0, '$', 0},
		"gbk.tex":   {0xCA, 0xFD, 0xD1, 0xA7},
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}

	tests := []struct {
		args     []string
		wantCode int
		wantOut  string
	}{
		{[]string{"encoding"}, exitUsage, "Usage: mathedit encoding"},
		{[]string{"encoding", filepath.Join(dir, "absent.tex")}, exitUsage, "Error:"},
		{[]string{"encoding", filepath.Join(dir, "utf8.tex")}, exitOK, "Encoding: UTF-8\n"},
		{[]string{"encoding", filepath.Join(dir, "bom.tex")}, exitOK, "Encoding: UTF-8-BOM"},
		{[]string{"encoding", filepath.Join(dir, "utf16.tex")}, exitOK, "Encoding: UTF-16LE"},
		{[]string{"encoding", filepath.Join(dir, "gbk.tex")}, exitOK, "Encoding: GBK"},
	}

	for _, tt := range tests {
		code, out, _ := runCLI(t, "", tt.args...)
		assert.Equal(t, tt.wantCode, code, "args %v", tt.args)
		assert.Contains(t, out, tt.wantOut, "args %v", tt.args)
	}
}

func TestValidateAndNormalizeCommands(t *testing.T) {
	code, out, _ := runCLI(t, areaText, "validate", "-")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Valid (1 math segments)")

	code, out, _ = runCLI(t, "$x^{2$", "validate", "-")
	assert.Equal(t, exitInvalid, code)
	assert.Contains(t, out, "Unbalanced braces")

	code, out, _ = runCLI(t, "", "normalize", `x^{2}`, "+", `\exponentialE`)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "x^2 + e\n", out)
}

func TestRenderCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preview.html")
	code, stdout, _ := runCLI(t, areaText, "render", "-", "--out="+out)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Preview written")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<math")
}
