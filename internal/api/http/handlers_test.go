package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/download"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/resolver"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/providers/network"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox/dispatch"
)

// offline answers every script request without touching the network
type offline struct{}

func (offline) Do(context.Context, string, network.Options) *network.Response {
	return &network.Response{OK: true, Status: 200, StatusText: "OK", Headers: map[string]string{}, Body: "{}"}
}

const workingScript = `
/**
 * @name Working
 * @version 1.0.0
 */
lx.on('request', async ({ action, source, info }) => {
  switch (action) {
    case 'musicSearch':
      return { list: [{ name: info.keyword, source: source.id }], total: 1 }
    case 'musicUrl':
      return { url: 'http://cdn/' + info.musicInfo.songmid + '.mp3', type: info.type }
    case 'lyric':
      return { lyric: '[00:00]la', tlyric: '' }
    case 'pic':
      return 'http://cdn/cover.jpg'
    case 'getTopList':
      return [{ id: 'hot' }]
    case 'board':
      return { list: [{ board: info.boardId, platform: source.id }], total: 42 }
  }
})
lx.send(lx.EVENT_NAMES.inited, { sources: { kw: { name: 'kw', actions: ['musicUrl'], qualitys: ['128k'] } } })
`

const brokenScript = `lx.on('request', () => { throw new Error('upstream down') })`

type testEnv struct {
	router    *gin.Engine
	db        *sql.DB
	sources   *registry.Store
	downloads *download.Manager
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	db := database.OpenMemory(t)

	scfg := sandbox.DefaultConfig()
	scfg.SessionTimeout = 2 * time.Second
	host := sandbox.NewHost(scfg, offline{}, logger)
	validate := func(ctx context.Context, script string) error {
		_, err := host.Validate(ctx, script, 0)
		return err
	}
	sources := registry.NewStore(db, validate, logger)

	d := dispatch.New(dispatch.Config{PollInterval: 5 * time.Millisecond, PollCeiling: 30 * time.Millisecond}, logger)
	rcfg := resolver.DefaultConfig()
	rcfg.ValidateSettle = 20 * time.Millisecond
	engine := resolver.NewEngine(sources, host, d, rcfg, logger)

	downloads := download.NewManager(download.NewStore(db), download.Config{Dir: t.TempDir()}, logger)

	h := NewHandlers(sources, engine, downloads, db, monitoring.NewMetrics(), logger)
	r := gin.New()
	h.Register(r)
	return &testEnv{router: r, db: db, sources: sources, downloads: downloads}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (e *testEnv) addSource(t *testing.T, name, script string, priority int) *registry.Source {
	t.Helper()
	src, err := e.sources.Create(context.Background(), registry.CreateInput{Name: name, Script: script, Priority: priority})
	require.NoError(t, err)
	return src
}

func TestRootHealthAndNotFound(t *testing.T) {
	env := setup(t)

	w, body := env.do(t, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LX Music Web API", body["name"])
	assert.Equal(t, "running", body["status"])

	w, body = env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["database"])

	w, body = env.do(t, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", body["error"])

	w, body = env.do(t, "GET", "/metrics/json", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "downloads")

	w, _ = env.do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSourceCRUD(t *testing.T) {
	env := setup(t)

	w, body := env.do(t, "POST", "/api/sources", gin.H{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Name and script are required", body["error"])

	w, body = env.do(t, "POST", "/api/sources", gin.H{"name": "bad", "script": "function ("})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid script", body["error"])
	assert.NotEmpty(t, body["details"])

	w, body = env.do(t, "POST", "/api/sources", gin.H{"name": "Working", "script": workingScript, "priority": 5})
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["id"].(string)
	assert.Equal(t, true, body["enabled"])

	w, body = env.do(t, "GET", "/api/sources/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Working", body["name"])

	w, body = env.do(t, "PUT", "/api/sources/"+id, gin.H{"priority": 9})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(9), body["priority"])

	w, body = env.do(t, "PUT", "/api/sources/"+id, gin.H{"script": "throw new Error('no')"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid script", body["error"])

	w, body = env.do(t, "PATCH", "/api/sources/"+id+"/toggle", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["enabled"])

	w, _ = env.do(t, "GET", "/api/sources", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list []registry.Source
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w, body = env.do(t, "DELETE", "/api/sources/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Source deleted successfully", body["message"])

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/sources/" + id},
		{"DELETE", "/api/sources/" + id},
		{"PATCH", "/api/sources/" + id + "/toggle"},
		{"POST", "/api/sources/" + id + "/test"},
	} {
		w, body = env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.method+" "+tc.path)
		assert.Equal(t, "Source not found", body["error"])
	}
}

func TestValidateAndTestSource(t *testing.T) {
	env := setup(t)

	w, body := env.do(t, "POST", "/api/sources/validate", gin.H{"script": workingScript})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "Working", body["info"].(map[string]any)["name"])
	assert.Contains(t, body["capabilities"], "kw")

	w, body = env.do(t, "POST", "/api/sources/validate", gin.H{"script": "lx.on("})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["valid"])

	src := env.addSource(t, "Working", workingScript, 0)
	w, body = env.do(t, "POST", "/api/sources/"+src.ID+"/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	results := body["results"].(map[string]any)
	assert.Equal(t, true, results["search"])
	assert.Equal(t, true, results["getTopList"])
}

func TestMusicWithoutSources(t *testing.T) {
	env := setup(t)

	w, body := env.do(t, "POST", "/api/music/search", gin.H{"keyword": "love"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resolver.NoSourcesMessage, body["error"])
	assert.Empty(t, body["results"])

	w, body = env.do(t, "POST", "/api/music/url", gin.H{"musicInfo": gin.H{"songmid": "1", "source": "kw"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No enabled sources", body["error"])

	w, _ = env.do(t, "POST", "/api/music/search", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMusicResolution(t *testing.T) {
	env := setup(t)
	env.addSource(t, "Working", workingScript, 1)
	track := gin.H{"songmid": "42", "name": "Song"}

	w, body := env.do(t, "POST", "/api/music/search", gin.H{"keyword": "love", "page": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "love", body["keyword"])
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(30), body["limit"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "Working", results[0].(map[string]any)["sourceName"])

	w, body = env.do(t, "POST", "/api/music/url", gin.H{"musicInfo": track, "quality": "320k", "sourceId": "kw"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "custom", body["sourceId"])
	assert.Equal(t, "http://cdn/42.mp3", body["url"])
	assert.Equal(t, "320k", body["quality"])

	w, body = env.do(t, "POST", "/api/music/lyric", gin.H{"musicInfo": track})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[00:00]la", body["lyric"])

	w, body = env.do(t, "POST", "/api/music/pic", gin.H{"musicInfo": track})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://cdn/cover.jpg", body["pic"])

	w, body = env.do(t, "POST", "/api/music/batch", gin.H{"quality": "128k", "items": []gin.H{
		{"musicInfo": gin.H{"songmid": "1", "source": "kw"}},
		{"musicInfo": gin.H{"songmid": "2", "source": "kw"}},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	batch := body["results"].([]any)
	require.Len(t, batch, 2)
	assert.Equal(t, "http://cdn/2.mp3", batch[1].(map[string]any)["url"])
}

func TestRankingRoutes(t *testing.T) {
	env := setup(t)
	env.addSource(t, "Working", workingScript, 1)

	for _, prefix := range []string{"/api/music", "/api/platform"} {
		w, body := env.do(t, "GET", prefix+"/ranking/list", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, body["sources"])

		w, body = env.do(t, "GET", prefix+"/ranking/kw/16?page=2&limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "kw", body["sourceId"])
		assert.Equal(t, "16", body["topListId"])
		assert.Equal(t, float64(2), body["page"])
		assert.Equal(t, float64(10), body["limit"])
		assert.Equal(t, float64(42), body["total"])
		item := body["list"].([]any)[0].(map[string]any)
		assert.Equal(t, "16", item["board"])
		assert.Equal(t, "kw", item["platform"])
	}
}

func TestResolutionFailureKeepsStatusOK(t *testing.T) {
	env := setup(t)
	env.addSource(t, "Broken", brokenScript, 1)
	track := gin.H{"musicInfo": gin.H{"songmid": "1", "source": "kw"}}

	w, body := env.do(t, "POST", "/api/music/url", track)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["url"])
	assert.Contains(t, body["error"], "upstream down")

	w, body = env.do(t, "POST", "/api/music/search", gin.H{"keyword": "x"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["results"])
	assert.NotEmpty(t, body["error"])

	w, body = env.do(t, "GET", "/api/music/ranking/kw/16", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["total"])
	assert.NotEmpty(t, body["error"])

	w, body = env.do(t, "POST", "/api/music/pic", track)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["pic"])
}

func TestDownloadRoutes(t *testing.T) {
	env := setup(t)

	w, body := env.do(t, "POST", "/api/downloads", gin.H{"name": "Song"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name and url are required", body["error"])

	w, body = env.do(t, "POST", "/api/downloads", gin.H{"name": "Song", "singer": "A", "url": "http://cdn/a.flac?k=1"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["id"].(string)
	assert.Equal(t, "A - Song.flac", body["fileName"])
	assert.Equal(t, "pending", body["status"])

	w, body = env.do(t, "POST", "/api/downloads/batch", gin.H{"items": []gin.H{
		{"name": "B", "url": "http://cdn/b.mp3"},
		{"name": "no url"},
	}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, body["results"], 2)

	w, body = env.do(t, "GET", "/api/downloads?status=pending&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(1), body["limit"])
	assert.Len(t, body["list"], 1)

	w, _ = env.do(t, "GET", "/api/downloads?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, "GET", "/api/downloads/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A", body["singer"])
	assert.Equal(t, "128k", body["quality"])

	w, body = env.do(t, "GET", "/api/downloads/stats/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(2), body["pending"])

	w, body = env.do(t, "POST", "/api/downloads/"+id+"/retry", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Download queued for retry", body["message"])

	w, body = env.do(t, "POST", "/api/downloads/clear-completed", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Completed downloads cleared", body["message"])

	w, body = env.do(t, "POST", "/api/downloads/batch-delete", gin.H{"ids": []string{id, "missing"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/downloads/" + id},
		{"DELETE", "/api/downloads/" + id},
		{"POST", "/api/downloads/" + id + "/retry"},
	} {
		w, body = env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.method+" "+tc.path)
		assert.Equal(t, "Download not found", body["error"])
	}
}
