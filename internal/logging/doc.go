// Package logging provides structured logging for projectkit.
//
// # Overview
//
// Logging wraps Zap with:
//   - A Trace level (-2, below Debug) used for per-file write detail
//   - Optional OpenTelemetry log output next to stdout
//   - Context field injection (trace_id, span_id, request.id, project)
//   - Encoder-level secret redaction
//   - Sampling below Error (errors are never sampled)
//
// # Usage
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithProject(ctx, "testProject")
//	logger.Info(ctx, "project materialized", zap.Int("files", n))
//
// Output:
//
//	{
//	  "ts": "2026-01-12T10:15:30Z",
//	  "level": "info",
//	  "msg": "project materialized",
//	  "service": "projectkit",
//	  "project": "testProject",
//	  "files": 4
//	}
//
// # Testing
//
// TestLogger records entries in memory:
//
//	tl := logging.NewTestLogger()
//	svc := project.NewMaterializer(root, project.WithLogger(tl.Logger))
//	tl.AssertLogged(t, zapcore.InfoLevel, "project materialized")
//
// Logger is safe for concurrent use. Child loggers (With, Named) do not
// affect their parent.
package logging
