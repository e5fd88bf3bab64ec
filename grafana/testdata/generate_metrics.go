// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without using real production data.
//
// It drives a real materializer and archiver against a throwaway workspace
// and exposes the resulting projectkit_* series on :9091/metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/projectkit/internal/archive"
	"github.com/fyrsmithlabs/projectkit/internal/project"
)

var (
	projects   = []string{"site", "landing-page", "docs", "dashboard"}
	categories = []string{"html", "css", "js", "assets"}
)

func main() {
	workspace, err := os.MkdirTemp("", "projectkit-metrics-")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(workspace)

	reg := prometheus.NewRegistry()
	m := project.NewMaterializer(workspace, project.WithMetrics(project.NewMetrics(reg)))
	archiveMetrics := archive.NewMetrics(reg)
	a := archive.NewArchiver(archive.WithMetrics(archiveMetrics))
	// Tight limits so the too_large result shows up on dashboards
	limited := archive.NewArchiver(archive.WithLimits(5, 0), archive.WithMetrics(archiveMetrics))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Seed some history so dashboards are not empty on first load
	for i := 0; i < 50; i++ {
		step(ctx, m, a, limited, workspace)
	}
	go generateContinuousData(ctx, m, a, limited, workspace)

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":9091", ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("Serving sample metrics on http://localhost:9091/metrics (workspace %s)", workspace)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func generateContinuousData(ctx context.Context, m *project.Materializer, a, limited *archive.Archiver, workspace string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step(ctx, m, a, limited, workspace)
		}
	}
}

// step materializes one random file set and sometimes archives the project.
func step(ctx context.Context, m *project.Materializer, a, limited *archive.Archiver, workspace string) {
	name := randomChoice(projects)
	files := randomFileSet()

	// Occasionally send an unsafe path so the invalid series moves
	if rand.Float64() > 0.9 {
		files.Add("js", "../outside.js", "x")
	}

	res, err := m.Materialize(ctx, files, name)
	if err != nil || rand.Float64() > 0.6 {
		return
	}

	archiver := a
	if rand.Float64() > 0.8 {
		archiver = limited
	}
	_, _ = archiver.Archive(ctx, res.Root)

	if rand.Float64() > 0.9 {
		_, _ = a.Archive(ctx, workspace+"/missing")
	}
}

func randomFileSet() project.FileSet {
	var fs project.FileSet
	n := rand.Intn(6) + 1
	for i := 0; i < n; i++ {
		cat := randomChoice(categories)
		path := fmt.Sprintf("%s/file_%02d.%s", cat, rand.Intn(20), extension(cat))
		fs.Add(cat, path, strings.Repeat("x", rand.Intn(64*1024)))
	}
	return fs
}

func extension(category string) string {
	switch category {
	case "assets":
		return "svg"
	default:
		return category
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
