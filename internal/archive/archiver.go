package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectkit/internal/logging"
	"github.com/fyrsmithlabs/projectkit/internal/sanitize"
)

const instrumentationName = "github.com/fyrsmithlabs/projectkit/internal/archive"

// Errors returned by the Archiver.
var (
	// ErrInvalidPath indicates the path is missing or not a directory.
	ErrInvalidPath = errors.New("invalid archive path")
	// ErrIOFailure indicates a read or write failed while building the archive.
	ErrIOFailure = errors.New("archive i/o failure")
	// ErrTooLarge indicates the tree exceeds the configured limits.
	ErrTooLarge = errors.New("archive too large")
)

// fallbackName is used when the directory has no usable base name ("/").
const fallbackName = "archive"

// Archive is a built zip archive held in memory.
type Archive struct {
	// Name is the suggested download name, "<base>.zip".
	Name string
	// Data holds the complete zip file.
	Data []byte
	// Entries is the number of files in the archive.
	Entries int
}

// Archiver builds zip archives from directory trees.
type Archiver struct {
	level    int
	maxFiles int
	maxBytes int64
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	exclude  []string
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithCompressionLevel sets the flate level used for every entry.
func WithCompressionLevel(level int) Option {
	return func(a *Archiver) {
		a.level = level
	}
}

// WithLimits caps the number of files and total uncompressed bytes.
// Zero disables a limit.
func WithLimits(maxFiles int, maxBytes int64) Option {
	return func(a *Archiver) {
		a.maxFiles = maxFiles
		a.maxBytes = maxBytes
	}
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Archiver) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithMetrics records Prometheus metrics. Nil disables them.
func WithMetrics(m *Metrics) Option {
	return func(a *Archiver) {
		a.metrics = m
	}
}

// WithExclude leaves the given files out of every archive. Files are matched
// by identity (os.SameFile), so an output file written inside the archived
// tree is skipped whatever path it was named by.
func WithExclude(paths ...string) Option {
	return func(a *Archiver) {
		a.exclude = append(a.exclude, paths...)
	}
}

// NewArchiver creates an Archiver using flate.DefaultCompression and no limits.
func NewArchiver(opts ...Option) *Archiver {
	a := &Archiver{
		level:  flate.DefaultCompression,
		logger: logging.NewNop(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DownloadName returns "<base>.zip" for dir. Relative paths, ".", and
// trailing separators resolve against the working directory first.
func DownloadName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fallbackName + ".zip"
	}
	base, err := sanitize.SafeBasename(abs)
	if err != nil {
		return fallbackName + ".zip"
	}
	return base + ".zip"
}

// Archive builds an in-memory zip of every regular file below dir.
// On error no archive is returned.
func (a *Archiver) Archive(ctx context.Context, dir string) (*Archive, error) {
	var buf bytes.Buffer
	n, err := a.WriteTo(ctx, dir, &buf)
	if err != nil {
		return nil, err
	}
	return &Archive{
		Name:    DownloadName(dir),
		Data:    buf.Bytes(),
		Entries: n,
	}, nil
}

// WriteTo streams a zip of every regular file below dir to w and returns the
// number of entries. On error w may hold a truncated archive.
func (a *Archiver) WriteTo(ctx context.Context, dir string, w io.Writer) (entries int, err error) {
	ctx, span := a.tracer.Start(ctx, "archive.build", trace.WithAttributes(
		attribute.String("archive.dir", dir),
	))
	cw := &countingWriter{w: w}
	var raw int64
	defer func() {
		result := "success"
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidPath):
				result = "invalid"
			case errors.Is(err, ErrTooLarge):
				result = "too_large"
			default:
				result = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("archive.entries", entries),
				attribute.Int64("archive.bytes", raw),
				attribute.Int64("archive.size", cw.n),
			)
			a.logger.Info(ctx, "archive built",
				zap.String("dir", dir),
				zap.Int("entries", entries),
				zap.Int64("bytes", raw),
				zap.Int64("size", cw.n),
			)
		}
		a.metrics.record(result, entries, raw, cw.n)
		span.End()
	}()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidPath, dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidPath, dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, dir)
	}

	var excluded []fs.FileInfo
	for _, p := range a.exclude {
		if fi, err := os.Stat(p); err == nil {
			excluded = append(excluded, fi)
		}
	}

	root, err := os.OpenRoot(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrIOFailure, dir, err)
	}
	defer root.Close()

	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, a.level)
	})

	walkErr := fs.WalkDir(root.FS(), ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: walk %s: %w", ErrIOFailure, p, walkErr)
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			a.logger.Debug(ctx, "skipping non-regular file",
				zap.String("path", p), zap.Stringer("mode", d.Type()))
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("%w: stat %s: %w", ErrIOFailure, p, err)
		}
		if isExcluded(fi, excluded) {
			a.logger.Debug(ctx, "skipping excluded file", zap.String("path", p))
			return nil
		}
		if a.maxFiles > 0 && entries+1 > a.maxFiles {
			return fmt.Errorf("%w: more than %d files", ErrTooLarge, a.maxFiles)
		}
		if a.maxBytes > 0 && raw+fi.Size() > a.maxBytes {
			return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, a.maxBytes)
		}

		n, err := addFile(zw, root, p, fi)
		if err != nil {
			return err
		}
		entries++
		raw += n
		a.logger.Trace(ctx, "file archived", zap.String("path", p), zap.Int64("bytes", n))
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("%w: finalize archive: %w", ErrIOFailure, err)
	}
	return entries, nil
}

func isExcluded(fi fs.FileInfo, excluded []fs.FileInfo) bool {
	for _, ex := range excluded {
		if os.SameFile(fi, ex) {
			return true
		}
	}
	return false
}

// addFile appends one regular file as a Deflate entry named by its slash path.
func addFile(zw *zip.Writer, root *os.Root, name string, fi fs.FileInfo) (int64, error) {
	f, err := root.Open(filepath.FromSlash(name))
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrIOFailure, name, err)
	}
	defer f.Close()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: fi.ModTime(),
	}
	hdr.SetMode(fi.Mode())

	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("%w: add %s: %w", ErrIOFailure, name, err)
	}
	n, err := io.Copy(ew, f)
	if err != nil {
		return n, fmt.Errorf("%w: copy %s: %w", ErrIOFailure, name, err)
	}
	return n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
