package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/logging"
)

const seedScript = `/**
 * @name Seeded
 */
lx.on('request', () => [])
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "db", "music.sqlite")
	cfg.Download.Dir = filepath.Join(dir, "downloads")
	cfg.RateLimit.Enabled = false
	return cfg
}

func TestNewServerSeedsAndServes(t *testing.T) {
	cfg := testConfig(t)
	seed := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seed, "seeded.js"), []byte(seedScript), 0o644))
	cfg.Seed.Dir = seed

	srv, err := NewServer(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/sources", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sources []registry.Source
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "Seeded", sources[0].Name)
}

func TestNewServerRejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resolver.SearchPolicy = "random"

	_, err := NewServer(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"

	srv, err := NewServer(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
