package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
)

type recordingHub struct {
	mu     sync.Mutex
	events []map[string]any
}

func (h *recordingHub) BroadcastDownload(_ string, data map[string]any) {
	h.mu.Lock()
	h.events = append(h.events, data)
	h.mu.Unlock()
}

func (h *recordingHub) statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e["status"].(string))
	}
	return out
}

func newManager(t *testing.T, opts ...Option) (*Manager, *Store) {
	t.Helper()
	store := NewStore(database.OpenMemory(t))
	cfg := Config{
		Dir:              t.TempDir(),
		MaxConcurrent:    2,
		Timeout:          5 * time.Second,
		ProgressInterval: time.Millisecond,
	}
	m := NewManager(store, cfg, zap.NewNop(), opts...)
	return m, store
}

func start(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
}

func waitStatus(t *testing.T, m *Manager, jobID string, want Status) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		j, err := m.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job never reached %s", want)
	return job
}

func TestManagerCompletesDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64<<10)
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	hub := &recordingHub{}
	metrics := monitoring.NewMetrics()
	m, _ := newManager(t, WithBroadcaster(hub), WithMetrics(metrics))
	start(t, m)

	res, err := m.Add(context.Background(), AddInput{Name: "Song", Singer: "Singer", URL: srv.URL + "/song.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "Singer - Song.mp3", res.FileName)
	assert.Equal(t, StatusPending, res.Status)

	job := waitStatus(t, m, res.ID, StatusCompleted)
	assert.Equal(t, int64(len(payload)), job.FileSize)
	assert.Equal(t, job.FileSize, job.DownloadedSize)
	assert.Equal(t, float64(100), job.Progress)

	data, err := os.ReadFile(job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Contains(t, ua.Load(), "Mozilla/5.0")

	require.Eventually(t, func() bool {
		s := hub.statuses()
		return len(s) > 0 && s[len(s)-1] == "completed"
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, metrics.Snapshot().ActiveDownloads)
}

func TestManagerRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	hub := &recordingHub{}
	m, _ := newManager(t, WithBroadcaster(hub))
	start(t, m)

	res, err := m.Add(context.Background(), AddInput{Name: "Song", URL: srv.URL + "/missing.mp3"})
	require.NoError(t, err)

	job := waitStatus(t, m, res.ID, StatusFailed)
	assert.Equal(t, "request failed with status code 404", job.Error)
	_, statErr := os.Stat(job.FilePath)
	assert.True(t, os.IsNotExist(statErr))
	require.Eventually(t, func() bool {
		s := hub.statuses()
		return len(s) == 1 && s[0] == "failed"
	}, time.Second, 10*time.Millisecond)
}

func TestManagerSniffsExtension(t *testing.T) {
	flac := append([]byte("fLaC\x00\x00\x00\x22"), bytes.Repeat([]byte{0}, 512)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(flac)
	}))
	defer srv.Close()

	m, _ := newManager(t)
	start(t, m)

	res, err := m.Add(context.Background(), AddInput{Name: "Song", Singer: "A", URL: srv.URL + "/stream"})
	require.NoError(t, err)
	assert.Equal(t, "A - Song.mp3", res.FileName)

	job := waitStatus(t, m, res.ID, StatusCompleted)
	assert.Equal(t, "A - Song.flac", filepath.Base(job.FilePath))
	_, err = os.Stat(job.FilePath)
	assert.NoError(t, err)
}

func TestManagerRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m, _ := newManager(t)
	start(t, m)
	ctx := context.Background()

	res, err := m.Add(ctx, AddInput{Name: "Song", URL: srv.URL + "/a.mp3"})
	require.NoError(t, err)
	waitStatus(t, m, res.ID, StatusFailed)

	fail.Store(false)
	require.NoError(t, m.Retry(ctx, res.ID))
	job := waitStatus(t, m, res.ID, StatusCompleted)
	assert.Empty(t, job.Error)

	assert.ErrorIs(t, m.Retry(ctx, "missing"), ErrNotFound)
}

func TestManagerRetryWhileRunningKeepsNewFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Length", "1000000")
			_, _ = w.Write([]byte("stale"))
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	m, _ := newManager(t)
	start(t, m)
	ctx := context.Background()

	res, err := m.Add(ctx, AddInput{Name: "Song", Singer: "A", URL: srv.URL + "/a.mp3"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Retry(ctx, res.ID))
	job := waitStatus(t, m, res.ID, StatusCompleted)

	data, err := os.ReadFile(job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assert.EqualValues(t, 2, hits.Load())
}

func TestManagerTransfersQueuedDuplicateOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m, _ := newManager(t)
	ctx := context.Background()
	res, err := m.Add(ctx, AddInput{Name: "Song", URL: srv.URL + "/a.mp3"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.process(ctx, res.ID)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load())
	job, err := m.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
}

func TestStoreClaimOnlyOnce(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	res, err := m.Add(ctx, AddInput{Name: "Song", URL: "http://cdn/a.mp3"})
	require.NoError(t, err)

	ok, err := store.Claim(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	job, err := store.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, job.Status)
}

func TestManagerDeleteCancelsTransfer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	m, _ := newManager(t)
	start(t, m)
	ctx := context.Background()

	res, err := m.Add(ctx, AddInput{Name: "Song", URL: srv.URL + "/slow.mp3"})
	require.NoError(t, err)
	job := waitStatus(t, m, res.ID, StatusDownloading)

	require.NoError(t, m.Delete(ctx, res.ID))
	_, err = m.Get(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Eventually(t, func() bool {
		_, err := os.Stat(job.FilePath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, m.Delete(ctx, res.ID), ErrNotFound)
}

func TestManagerStartRequeues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	m, store := newManager(t)
	ctx := context.Background()
	dir := m.cfg.Dir

	pending := &Job{ID: "p1", Name: "P", Source: "kw", URL: srv.URL + "/p.mp3", FilePath: filepath.Join(dir, "p.mp3")}
	stuck := &Job{ID: "s1", Name: "S", Source: "kw", URL: srv.URL + "/s.mp3", FilePath: filepath.Join(dir, "s.mp3")}
	require.NoError(t, store.Insert(ctx, pending))
	require.NoError(t, store.Insert(ctx, stuck))
	require.NoError(t, store.SetStatus(ctx, "s1", StatusDownloading, ""))

	start(t, m)
	waitStatus(t, m, "p1", StatusCompleted)
	waitStatus(t, m, "s1", StatusCompleted)
}

func TestManagerListStatsAndClear(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []Status{StatusCompleted, StatusCompleted, StatusFailed, StatusPending} {
		store.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		j := &Job{ID: string(rune('a' + i)), Name: "n", Source: "kw", URL: "http://x/a.mp3"}
		require.NoError(t, store.Insert(ctx, j))
		switch st {
		case StatusCompleted:
			require.NoError(t, store.Complete(ctx, j.ID, 10))
		case StatusFailed:
			require.NoError(t, store.SetStatus(ctx, j.ID, StatusFailed, "boom"))
		}
	}

	all, err := m.List(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 50, all.Limit)
	require.Len(t, all.List, 4)
	assert.Equal(t, "d", all.List[0].ID)

	page, err := m.List(ctx, StatusCompleted, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.List, 1)
	assert.Equal(t, "a", page.List[0].ID)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 4, Pending: 1, Completed: 2, Failed: 1, TotalSize: 20}, stats)

	n, err := m.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, 1, m.DeleteBatch(ctx, []string{"c", "missing"}))
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestAddBatchReportsPerItem(t *testing.T) {
	m, _ := newManager(t)
	out := m.AddBatch(context.Background(), []AddInput{
		{Name: "ok", URL: "http://x/a.mp3"},
		{Name: "no url"},
	})
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, "no url", out[1].Name)
	assert.NotEmpty(t, out[1].Error)
}
