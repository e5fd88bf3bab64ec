// Package telemetry provides OpenTelemetry tracing and metrics for projectkit.
//
// Spans and OTel metrics are exported over OTLP (gRPC or HTTP/protobuf) to a
// collector. Telemetry is off by default; Prometheus metrics on /metrics are
// independent of it.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	m := project.NewMaterializer(ws, project.WithTracer(tel.Tracer("projectkit.project")))
//
// Exporter failures degrade the instance instead of failing startup; see
// Health.
//
// Tests use NewTestTelemetry, which records spans with tracetest.SpanRecorder
// and metrics with a manual reader.
package telemetry
