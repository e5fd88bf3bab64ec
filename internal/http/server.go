// Package http exposes project materialization and archive download over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/projectkit/internal/archive"
	"github.com/fyrsmithlabs/projectkit/internal/logging"
	"github.com/fyrsmithlabs/projectkit/internal/project"
	"github.com/fyrsmithlabs/projectkit/internal/sanitize"
)

// Materializer writes file sets into project directories.
type Materializer interface {
	Materialize(ctx context.Context, files project.FileSet, projectName string) (*project.Result, error)
}

// Archiver builds zip archives of directories.
type Archiver interface {
	Archive(ctx context.Context, dir string) (*archive.Archive, error)
}

// Server provides the projectkit HTTP API.
type Server struct {
	echo      *echo.Echo
	projects  Materializer
	archiver  Archiver
	logger    *logging.Logger
	config    *Config
	workspace string
	locks     *keyedMutex
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Workspace bounds download paths. Relative download paths resolve
	// against it.
	Workspace string
	// DefaultProject is used when a request omits project_name.
	DefaultProject string
	// DownloadRate is the sustained download requests per second per client.
	// Zero disables rate limiting.
	DownloadRate  float64
	DownloadBurst int
	// BodyLimit caps request bodies, in echo's size syntax ("32M").
	BodyLimit string
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Metrics records OTel request metrics when set.
	Metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(projects Materializer, archiver Archiver, logger *logging.Logger, cfg *Config) (*Server, error) {
	if projects == nil {
		return nil, fmt.Errorf("materializer cannot be nil")
	}
	if archiver == nil {
		return nil, fmt.Errorf("archiver cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	if cfg.DefaultProject == "" {
		cfg.DefaultProject = "testProject"
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "32M"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		projects:  projects,
		archiver:  archiver,
		logger:    logger,
		config:    cfg,
		workspace: workspace,
		locks:     newKeyedMutex(),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.MetricsMiddleware())
	}
	// requestLogger renders errors, so metrics above it see final statuses
	e.Use(s.requestLogger)
	e.Use(middleware.Recover())

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/projects", s.handleMaterialize, middleware.BodyLimit(s.config.BodyLimit))

	var download []echo.MiddlewareFunc
	if s.config.DownloadRate > 0 {
		download = append(download, s.downloadLimiter())
	}
	v1.GET("/download", s.handleDownload, download...)
}

// downloadLimiter rate limits archive builds per client IP.
func (s *Server) downloadLimiter() echo.MiddlewareFunc {
	burst := s.config.DownloadBurst
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.DownloadRate),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apiError(http.StatusForbidden, "could not identify client", nil)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apiError(http.StatusTooManyRequests, "download rate limit exceeded", nil)
		},
	})
}

// requestContext carries the request ID and caller trace context into the
// request's context.Context.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// requestLogger logs each request once: Info on success, Warn for client
// errors, Error for server errors.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Render now so the logged status is final
			c.Error(err)
		}

		status := c.Response().Status
		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		ctx := c.Request().Context()
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error(ctx, "http request", fields...)
		case status >= http.StatusBadRequest:
			s.logger.Warn(ctx, "http request", fields...)
		default:
			s.logger.Info(ctx, "http request", fields...)
		}
		return nil
	}
}

func apiError(code int, msg string, written []string) *echo.HTTPError {
	return echo.NewHTTPError(code, ErrorResponse{Error: msg, Written: written})
}

// handleError renders every error as ErrorResponse JSON.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	body := ErrorResponse{Error: "internal server error"}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch msg := he.Message.(type) {
		case ErrorResponse:
			body = msg
		case string:
			body = ErrorResponse{Error: msg}
		default:
			body = ErrorResponse{Error: http.StatusText(code)}
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "failed to write error response", zap.Error(err))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// materializeRequest is the decoded body of POST /api/v1/projects:
//
//	{"project_name": "site", "files": {"html": {"index.html": "..."}}}
type materializeRequest struct {
	ProjectName string
	Files       project.FileSet
}

// decodeMaterializeRequest keeps the document order of files, which
// encoding/json would lose by decoding into maps.
func decodeMaterializeRequest(body []byte, defaultProject string) (*materializeRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("request body must be valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, errors.New("request body must be a JSON object")
	}

	req := &materializeRequest{ProjectName: defaultProject, Files: project.FileSet{}}

	if name := doc.Get("project_name"); name.Exists() && name.Type != gjson.Null {
		if name.Type != gjson.String {
			return nil, errors.New("project_name must be a string")
		}
		req.ProjectName = name.String()
	}

	if files := doc.Get("files"); files.Exists() && files.Type != gjson.Null {
		fs, err := project.ParseFileSet([]byte(files.Raw))
		if err != nil {
			return nil, err
		}
		req.Files = fs
	}
	return req, nil
}

func (s *Server) handleMaterialize(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apiError(http.StatusBadRequest, "failed to read request body", nil)
	}

	req, err := decodeMaterializeRequest(body, s.config.DefaultProject)
	if err != nil {
		return apiError(http.StatusBadRequest, err.Error(), nil)
	}

	ctx := logging.WithProject(c.Request().Context(), req.ProjectName)

	key := req.ProjectName
	if name, err := sanitize.ValidateProjectName(req.ProjectName); err == nil {
		key = name
	}
	unlock := s.locks.Lock(key)
	res, err := s.projects.Materialize(ctx, req.Files, req.ProjectName)
	unlock()
	if err != nil {
		return materializeError(err)
	}

	rel, err := filepath.Rel(s.workspace, res.Root)
	if err != nil {
		rel = req.ProjectName
	}
	return c.JSON(http.StatusCreated, MaterializeResponse{
		ProjectName:  req.ProjectName,
		Path:         filepath.ToSlash(rel),
		FilesWritten: res.Files,
		Created:      res.Created,
	})
}

func materializeError(err error) error {
	var written []string
	var merr *project.MaterializeError
	if errors.As(err, &merr) {
		written = merr.Written
	}

	switch {
	case errors.Is(err, project.ErrInvalidProjectName),
		errors.Is(err, project.ErrUnsafePath),
		errors.Is(err, project.ErrInvalidFileSet):
		return apiError(http.StatusBadRequest, err.Error(), nil).SetInternal(err)
	default:
		msg := "failed to write project files"
		if len(written) > 0 {
			msg = fmt.Sprintf("failed to write project files; %d files were written before the failure", len(written))
		}
		return apiError(http.StatusInternalServerError, msg, written).SetInternal(err)
	}
}

func (s *Server) handleDownload(c echo.Context) error {
	p := c.QueryParam("path")
	if strings.TrimSpace(p) == "" {
		return apiError(http.StatusBadRequest, "path query parameter is required", nil)
	}

	dir, err := s.resolveDownloadPath(p)
	if err != nil {
		return err
	}

	out, err := s.archiver.Archive(c.Request().Context(), dir)
	if err != nil {
		switch {
		case errors.Is(err, archive.ErrInvalidPath):
			return apiError(http.StatusNotFound, fmt.Sprintf("project directory not found: %s", p), nil).SetInternal(err)
		case errors.Is(err, archive.ErrTooLarge):
			return apiError(http.StatusRequestEntityTooLarge, err.Error(), nil).SetInternal(err)
		default:
			return apiError(http.StatusInternalServerError, "failed to build archive", nil).SetInternal(err)
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": out.Name}))
	return c.Blob(http.StatusOK, "application/zip", out.Data)
}

// resolveDownloadPath maps a client path to an absolute directory inside the
// workspace. Symlinks are resolved before the containment check.
func (s *Server) resolveDownloadPath(p string) (string, error) {
	abs, err := sanitize.ValidatePath(p, s.workspace)
	if err != nil {
		return "", apiError(http.StatusBadRequest, "path must stay inside the workspace", nil).SetInternal(err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", apiError(http.StatusNotFound, fmt.Sprintf("project directory not found: %s", p), nil).SetInternal(err)
	}
	if err != nil {
		return "", apiError(http.StatusBadRequest, "invalid path", nil).SetInternal(err)
	}

	root, err := filepath.EvalSymlinks(s.workspace)
	if err != nil {
		root = s.workspace
	}
	if _, err := sanitize.ValidatePath(resolved, root); err != nil {
		return "", apiError(http.StatusBadRequest, "path must stay inside the workspace", nil).SetInternal(err)
	}

	// The workspace itself holds every project plus in-flight staging
	// directories, so only directories below it can be downloaded.
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." {
		return "", apiError(http.StatusBadRequest, "path must name a project directory, not the workspace", nil)
	}
	if first := strings.Split(filepath.ToSlash(rel), "/")[0]; strings.HasPrefix(first, ".") && strings.Contains(first, ".staging-") {
		return "", apiError(http.StatusNotFound, fmt.Sprintf("project directory not found: %s", p), nil)
	}
	return resolved, nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server",
		zap.String("addr", s.Addr()), zap.String("workspace", s.workspace))
	return s.echo.Start(s.Addr())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
