package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siteFiles = `{"html": {"index.html": "<html></html>"}, "css": {"style.css": "body{}"}}`

func TestMaterializeCmd_FromFile(t *testing.T) {
	ws := t.TempDir()
	input := filepath.Join(t.TempDir(), "files.json")
	require.NoError(t, os.WriteFile(input, []byte(siteFiles), 0o600))

	stdout, _, err := execute(t, nil, "materialize", "--name", "site", "--workspace", ws, input)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Created")
	assert.Contains(t, stdout, "2 file(s) written")

	data, err := os.ReadFile(filepath.Join(ws, "site", "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
}

func TestMaterializeCmd_FromStdin(t *testing.T) {
	ws := t.TempDir()

	_, _, err := execute(t, strings.NewReader(siteFiles), "materialize", "-n", "site", "-w", ws, "-")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(ws, "site", "index.html"))

	stdout, _, err := execute(t, strings.NewReader(`{"js": {"app.js": "1"}}`), "materialize", "-n", "site", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Updated")
	assert.FileExists(t, filepath.Join(ws, "site", "index.html"))
	assert.FileExists(t, filepath.Join(ws, "site", "app.js"))
}

func TestMaterializeCmd_DefaultName(t *testing.T) {
	ws := t.TempDir()

	_, _, err := execute(t, strings.NewReader(`{}`), "materialize", "-w", ws)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(ws, "testProject"))
}

func TestMaterializeCmd_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
	}{
		{"invalid json", `{"html":`, nil},
		{"traversal", `{"x": {"../evil.txt": "x"}}`, nil},
		{"bad project name", `{}`, []string{"--name", "../up"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := t.TempDir()
			args := append([]string{"materialize", "-w", ws}, tt.args...)

			_, _, err := execute(t, strings.NewReader(tt.input), args...)
			assert.Error(t, err)
			assert.NoFileExists(t, filepath.Join(filepath.Dir(ws), "evil.txt"))
		})
	}
}

func TestMaterializeCmd_MissingFile(t *testing.T) {
	_, _, err := execute(t, nil, "materialize", "-w", t.TempDir(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}
