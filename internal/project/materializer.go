package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectkit/internal/logging"
	"github.com/fyrsmithlabs/projectkit/internal/sanitize"
)

const instrumentationName = "github.com/fyrsmithlabs/projectkit/internal/project"

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

// Materializer writes FileSets into project directories below a workspace.
// It holds no per-call state and is safe for concurrent use; concurrent
// calls on the same project interleave at file granularity.
type Materializer struct {
	workspace string
	staging   bool
	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *Metrics
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(m *Materializer) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithStaging controls whether new projects are assembled in a staging
// directory. Enabled by default.
func WithStaging(enabled bool) Option {
	return func(m *Materializer) {
		m.staging = enabled
	}
}

// WithMetrics records Prometheus metrics. Nil disables them.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Materializer) {
		m.metrics = metrics
	}
}

// NewMaterializer creates a Materializer rooted at workspace. An empty
// workspace means the working directory.
func NewMaterializer(workspace string, opts ...Option) *Materializer {
	if workspace == "" {
		workspace = "."
	}
	m := &Materializer{
		workspace: workspace,
		staging:   true,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Workspace returns the absolute workspace path.
func (m *Materializer) Workspace() (string, error) {
	return filepath.Abs(m.workspace)
}

// ProjectPath resolves a project name to its absolute directory without
// touching the filesystem.
func (m *Materializer) ProjectPath(projectName string) (string, error) {
	name, err := sanitize.ValidateProjectName(projectName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidProjectName, err)
	}
	ws, err := m.Workspace()
	if err != nil {
		return "", err
	}
	return filepath.Join(ws, name), nil
}

type plannedFile struct {
	category string
	path     string // cleaned, slash-separated
	content  string
}

// Materialize writes every file in files below <workspace>/<projectName>.
//
// The project name and every path are validated before anything is written.
// Missing directories are created; existing files are replaced. Entries are
// written in FileSet order, so the last entry for a path wins.
//
// Any failure is returned as *MaterializeError.
func (m *Materializer) Materialize(ctx context.Context, files FileSet, projectName string) (res *Result, err error) {
	start := time.Now()
	ctx = logging.WithProject(ctx, projectName)
	ctx, span := m.tracer.Start(ctx, "project.materialize", trace.WithAttributes(
		attribute.String("project.name", projectName),
		attribute.Int("project.entries", files.Len()),
	))
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			if errors.Is(err, ErrInvalidProjectName) || errors.Is(err, ErrUnsafePath) {
				result = "invalid"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("project.files", res.Files),
				attribute.Bool("project.created", res.Created),
			)
		}
		m.metrics.recordCall(result, time.Since(start).Seconds())
		span.End()
	}()

	name, err := sanitize.ValidateProjectName(projectName)
	if err != nil {
		return nil, &MaterializeError{Project: projectName, Err: fmt.Errorf("%w: %w", ErrInvalidProjectName, err)}
	}

	plan, err := planFiles(projectName, files)
	if err != nil {
		return nil, err
	}

	wsPath, err := m.Workspace()
	if err != nil {
		return nil, &MaterializeError{Project: projectName, Err: fmt.Errorf("resolve workspace: %w", err)}
	}
	if err := os.MkdirAll(wsPath, dirMode); err != nil {
		return nil, &MaterializeError{Project: projectName, Err: fmt.Errorf("create workspace: %w", err)}
	}
	ws, err := os.OpenRoot(wsPath)
	if err != nil {
		return nil, &MaterializeError{Project: projectName, Err: fmt.Errorf("open workspace: %w", err)}
	}
	defer ws.Close()

	p := &projectWrite{
		Materializer: m,
		ws:           ws,
		name:         name,
		project:      projectName,
		root:         filepath.Join(wsPath, name),
		plan:         plan,
	}

	info, statErr := ws.Stat(name)
	switch {
	case statErr == nil && !info.IsDir():
		return nil, &MaterializeError{Project: projectName, Err: fmt.Errorf("%s exists and is not a directory", p.root)}
	case statErr == nil:
		res, err = p.merge(ctx)
	case !errors.Is(statErr, fs.ErrNotExist):
		return nil, &MaterializeError{Project: projectName, Err: fmt.Errorf("stat project directory: %w", statErr)}
	case m.staging:
		res, err = p.createStaged(ctx)
	default:
		res, err = p.createDirect(ctx)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info(ctx, "project materialized",
		zap.String("root", res.Root),
		zap.Int("files", res.Files),
		zap.Bool("created", res.Created),
	)
	return res, nil
}

// planFiles validates every path up front so that nothing is written when
// any entry is unsafe.
func planFiles(project string, files FileSet) ([]plannedFile, error) {
	plan := make([]plannedFile, 0, files.Len())
	for _, cat := range files {
		for _, f := range cat.Files {
			clean, err := sanitize.ValidateRelPath(f.Path)
			if err != nil {
				return nil, &MaterializeError{
					Project:  project,
					Category: cat.Name,
					Path:     f.Path,
					Err:      fmt.Errorf("%w: %w", ErrUnsafePath, err),
				}
			}
			plan = append(plan, plannedFile{category: cat.Name, path: clean, content: f.Content})
		}
	}
	return plan, nil
}

// projectWrite carries the state of one Materialize call.
type projectWrite struct {
	*Materializer
	ws      *os.Root
	name    string // native, relative to ws
	project string // as requested
	root    string // absolute
	plan    []plannedFile
}

func (p *projectWrite) merge(ctx context.Context) (*Result, error) {
	root, err := p.ws.OpenRoot(p.name)
	if err != nil {
		return nil, &MaterializeError{Project: p.project, Err: fmt.Errorf("open project directory: %w", err)}
	}
	defer root.Close()

	written, failed, err := p.writeAll(ctx, root)
	if err != nil {
		return nil, &MaterializeError{
			Project:  p.project,
			Category: failed.category,
			Path:     failed.path,
			Written:  written,
			Err:      err,
		}
	}
	return p.result(written, false), nil
}

func (p *projectWrite) createDirect(ctx context.Context) (*Result, error) {
	if err := p.ws.MkdirAll(p.name, dirMode); err != nil {
		return nil, &MaterializeError{Project: p.project, Err: fmt.Errorf("create project directory: %w", err)}
	}
	p.logger.Info(ctx, "directory created", zap.String("path", p.root))

	res, err := p.merge(ctx)
	if err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}

// createStaged writes into a hidden sibling directory and renames it into
// place once every file is on disk. On failure the staging directory is
// removed.
func (p *projectWrite) createStaged(ctx context.Context) (*Result, error) {
	parent := filepath.Dir(p.name)
	if parent != "." {
		if err := p.ws.MkdirAll(parent, dirMode); err != nil {
			return nil, &MaterializeError{Project: p.project, Err: fmt.Errorf("create parent directory: %w", err)}
		}
	}

	staging := filepath.Join(parent, "."+filepath.Base(p.name)+".staging-"+uuid.NewString())
	if err := p.ws.Mkdir(staging, dirMode); err != nil {
		return nil, &MaterializeError{Project: p.project, Err: fmt.Errorf("create staging directory: %w", err)}
	}
	p.logger.Debug(ctx, "staging directory created", zap.String("staging", staging))

	discard := func() {
		if err := p.ws.RemoveAll(staging); err != nil {
			p.logger.Warn(ctx, "failed to remove staging directory",
				zap.String("staging", staging), zap.Error(err))
		}
	}

	root, err := p.ws.OpenRoot(staging)
	if err != nil {
		discard()
		return nil, &MaterializeError{Project: p.project, Err: fmt.Errorf("open staging directory: %w", err)}
	}
	written, failed, err := p.writeAll(ctx, root)
	_ = root.Close()
	if err != nil {
		discard()
		return nil, &MaterializeError{
			Project:  p.project,
			Category: failed.category,
			Path:     failed.path,
			Err:      err,
		}
	}

	if err := p.ws.Rename(staging, p.name); err != nil {
		discard()
		return nil, &MaterializeError{Project: p.project, Err: fmt.Errorf("commit staged project: %w", err)}
	}
	p.logger.Info(ctx, "directory created", zap.String("path", p.root))

	return p.result(written, true), nil
}

// writeAll writes the plan in order. On failure it returns the files
// already committed and the entry that failed.
func (p *projectWrite) writeAll(ctx context.Context, root *os.Root) ([]string, *plannedFile, error) {
	written := make([]string, 0, len(p.plan))
	dirs := make(map[string]bool)

	for i := range p.plan {
		f := &p.plan[i]
		if err := p.ensureDir(ctx, root, path.Dir(f.path), dirs); err != nil {
			return written, f, err
		}
		if err := writeAtomic(root, f.path, []byte(f.content)); err != nil {
			return written, f, err
		}
		written = append(written, f.path)
		p.metrics.recordFile(len(f.content))
		p.logger.Info(ctx, "file written",
			zap.String("category", f.category),
			zap.String("path", f.path),
			zap.Int("bytes", len(f.content)),
		)
	}
	return written, nil, nil
}

func (p *projectWrite) ensureDir(ctx context.Context, root *os.Root, dir string, seen map[string]bool) error {
	if dir == "." || seen[dir] {
		return nil
	}
	native := filepath.FromSlash(dir)
	if _, err := root.Stat(native); err == nil {
		seen[dir] = true
		return nil
	}
	if err := root.MkdirAll(native, dirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	seen[dir] = true
	p.logger.Info(ctx, "directory created", zap.String("path", dir))
	return nil
}

func (p *projectWrite) result(written []string, created bool) *Result {
	distinct := make(map[string]struct{}, len(written))
	for _, w := range written {
		distinct[w] = struct{}{}
	}
	return &Result{
		Root:    p.root,
		Written: written,
		Files:   len(distinct),
		Created: created,
	}
}

// writeAtomic writes data to a temp file next to rel and renames it over rel.
func writeAtomic(root *os.Root, rel string, data []byte) error {
	native := filepath.FromSlash(rel)
	tmp := filepath.Join(filepath.Dir(native), "."+filepath.Base(native)+".tmp-"+uuid.NewString())

	f, err := root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()        //nolint:errcheck // already failing
		_ = root.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		_ = root.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := root.Rename(tmp, native); err != nil {
		_ = root.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", rel, err)
	}
	return nil
}
