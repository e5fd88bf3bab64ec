package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/projectkit/internal/logging"
)

// writeTree creates files (slash paths to content) below root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// readArchive returns entry names in archive order and their contents.
func readArchive(t *testing.T, data []byte) ([]string, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	contents := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		names = append(names, f.Name)
		contents[f.Name] = string(b)
	}
	return names, contents
}

func TestArchive_ConcreteScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	writeTree(t, dir, map[string]string{
		"index.html": "<html></html>",
		"style.css":  "body{}",
	})

	out, err := NewArchiver().Archive(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "site.zip", out.Name)
	assert.Equal(t, 2, out.Entries)

	names, contents := readArchive(t, out.Data)
	assert.Equal(t, []string{"index.html", "style.css"}, names)
	assert.Equal(t, "<html></html>", contents["index.html"])
	assert.Equal(t, "body{}", contents["style.css"])
}

func TestArchive_Completeness(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"README.md":               "# readme\n",
		"src/main.go":             "package main\n",
		"src/internal/util.go":    "package internal\n",
		"assets/img/logo.svg":     "<svg/>",
		"assets/empty.txt":        "",
		"deep/a/b/c/d/e/leaf.txt": strings.Repeat("leaf ", 1000),
		"unicode/héllo wörld.txt": "ünïcödé",
	}
	writeTree(t, dir, files)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty-dir"), 0o755))

	out, err := NewArchiver(WithCompressionLevel(flate.BestCompression)).Archive(context.Background(), dir)
	require.NoError(t, err)

	names, contents := readArchive(t, out.Data)
	assert.Equal(t, len(files), out.Entries)
	assert.Len(t, names, len(files))
	for p, want := range files {
		assert.Equal(t, want, contents[p], p)
	}
	for _, n := range names {
		assert.False(t, strings.HasSuffix(n, "/"), "no directory entries: %s", n)
		assert.NotContains(t, n, `\`)
	}
}

func TestArchive_DeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"b.txt":     "b",
		"a/z.txt":   "z",
		"a/b/c.txt": "c",
		"c.txt":     "c",
	})

	a := NewArchiver()
	first, err := a.Archive(context.Background(), dir)
	require.NoError(t, err)
	second, err := a.Archive(context.Background(), dir)
	require.NoError(t, err)

	names1, _ := readArchive(t, first.Data)
	names2, _ := readArchive(t, second.Data)
	assert.Equal(t, names1, names2)
	assert.Equal(t, []string{"a/b/c.txt", "a/z.txt", "b.txt", "c.txt"}, names1)
	assert.True(t, sort.StringsAreSorted(names1))
}

func TestArchive_InvalidPath(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(base, "does-not-exist")},
		{name: "regular file", path: file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewArchiver().Archive(context.Background(), tt.path)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestArchive_EmptyDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	out, err := NewArchiver().Archive(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "demo.zip", out.Name)
	assert.Equal(t, 0, out.Entries)
	names, _ := readArchive(t, out.Data)
	assert.Empty(t, names)
}

func TestArchive_Exclude(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	writeTree(t, dir, map[string]string{
		"index.html":  "<p>",
		"out/pkg.zip": "partial",
	})

	// Excluded files match by identity, so a non-clean spelling still works
	a := NewArchiver(
		WithExclude(filepath.Join(dir, "out", "..", "out", "pkg.zip")),
		WithExclude(filepath.Join(dir, "missing.zip")),
	)
	out, err := a.Archive(context.Background(), dir)
	require.NoError(t, err)

	names, _ := readArchive(t, out.Data)
	assert.Equal(t, []string{"index.html"}, names)
	assert.Equal(t, 1, out.Entries)
}

func TestArchive_SkipsSymlinks(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"secret.txt": "do not ship"})

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"real.txt": "real"})
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(dir, "file-link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "dir-link")))

	tl := logging.NewTestLogger()
	out, err := NewArchiver(WithLogger(tl.Logger)).Archive(context.Background(), dir)
	require.NoError(t, err)

	names, _ := readArchive(t, out.Data)
	assert.Equal(t, []string{"real.txt"}, names)
	tl.AssertLogged(t, zapcore.DebugLevel, "skipping non-regular file")
}

func TestArchive_Limits(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt": "12345",
		"b.txt": "12345",
		"c.txt": "12345",
	})

	tests := []struct {
		name     string
		maxFiles int
		maxBytes int64
		wantErr  bool
	}{
		{name: "no limits", wantErr: false},
		{name: "files at limit", maxFiles: 3, wantErr: false},
		{name: "too many files", maxFiles: 2, wantErr: true},
		{name: "bytes at limit", maxBytes: 15, wantErr: false},
		{name: "too many bytes", maxBytes: 14, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewArchiver(WithLimits(tt.maxFiles, tt.maxBytes)).Archive(context.Background(), dir)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTooLarge)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, out.Entries)
		})
	}
}

func TestArchive_UnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"locked.txt": "x"})
	require.NoError(t, os.Chmod(filepath.Join(dir, "locked.txt"), 0o000))

	out, err := NewArchiver().Archive(context.Background(), dir)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestWriteTo_Streams(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "a", "b/c.txt": "c"})

	var buf bytes.Buffer
	n, err := NewArchiver().WriteTo(context.Background(), dir, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, contents := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{"a.txt": "a", "b/c.txt": "c"}, contents)
}

func TestDownloadName(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{in: "/srv/projects/site", want: "site.zip"},
		{in: "/srv/projects/site/", want: "site.zip"},
		{in: "relative/demo", want: "demo.zip"},
		{in: ".", want: filepath.Base(wd) + ".zip"},
		{in: "/", want: "archive.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DownloadName(tt.in))
		})
	}
}

func TestArchive_TracingAndMetrics(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	metrics := NewMetrics(prometheus.NewRegistry())
	a := NewArchiver(WithTracer(tp.Tracer("test")), WithMetrics(metrics))

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "abc", "b.txt": "de"})

	_, err := a.Archive(context.Background(), dir)
	require.NoError(t, err)
	_, err = a.Archive(context.Background(), filepath.Join(dir, "missing"))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "archive.build", spans[0].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveTotal.WithLabelValues("invalid")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.FilesTotal))
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.BytesTotal))
}
