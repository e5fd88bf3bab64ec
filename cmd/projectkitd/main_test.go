package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Setenv("HOME", t.TempDir())
	workspace := t.TempDir()
	t.Setenv("PROJECTKIT_SERVER_PORT", "18084")
	t.Setenv("PROJECTKIT_SERVER_HOST", "127.0.0.1")
	t.Setenv("PROJECTKIT_PROJECTS_WORKSPACE", workspace)
	t.Setenv("PROJECTKIT_LOGGING_LEVEL", "error")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "", reg, reg)
	}()

	base := "http://127.0.0.1:18084"
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond, "server did not become healthy")

	resp, err := http.Post(base+"/api/v1/projects", "application/json",
		strings.NewReader(`{"project_name": "site", "files": {"html": {"index.html": "<html></html>"}}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "site", body["path"])

	data, err := os.ReadFile(filepath.Join(workspace, "site", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))

	dl, err := http.Get(base + "/api/v1/download?path=site")
	require.NoError(t, err)
	dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "application/zip", dl.Header.Get("Content-Type"))

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}
