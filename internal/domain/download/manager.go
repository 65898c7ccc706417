package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/shared/id"
)

const (
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	queueDepth = 1024
	sniffBytes = 3072
)

// Broadcaster receives job state changes, typically a websocket hub
type Broadcaster interface {
	BroadcastDownload(downloadID string, data map[string]any)
}

// Config tunes the manager
type Config struct {
	Dir              string
	MaxConcurrent    int
	Timeout          time.Duration
	ProgressInterval time.Duration
}

// DefaultConfig mirrors the service defaults
func DefaultConfig() Config {
	return Config{
		Dir:              "./data/downloads",
		MaxConcurrent:    3,
		Timeout:          60 * time.Second,
		ProgressInterval: 500 * time.Millisecond,
	}
}

// Manager queues jobs and runs at most MaxConcurrent transfers at once
type Manager struct {
	cfg     Config
	store   *Store
	client  *resty.Client
	logger  *zap.Logger
	metrics *monitoring.Metrics
	hub     Broadcaster

	queue  chan string
	mu     sync.Mutex
	active map[string]*transferRun
	wg     sync.WaitGroup
	stop   context.CancelFunc
}

// transferRun is one in-flight transfer; done closes once its worker has
// cleaned up, partial file included
type transferRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Manager
type Option func(*Manager)

// WithMetrics records transfer metrics
func WithMetrics(m *monitoring.Metrics) Option { return func(mg *Manager) { mg.metrics = m } }

// WithBroadcaster publishes progress to b
func WithBroadcaster(b Broadcaster) Option { return func(mg *Manager) { mg.hub = b } }

// WithHTTPClient replaces the transfer client
func WithHTTPClient(c *http.Client) Option {
	return func(mg *Manager) { mg.client = resty.NewWithClient(c) }
}

// NewManager creates a manager; call Start to begin processing
func NewManager(store *Store, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger,
		queue:  make(chan string, queueDepth),
		active: make(map[string]*transferRun),
	}
	m.client = resty.NewWithClient(&http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
			MaxIdleConnsPerHost:   cfg.MaxConcurrent,
		},
	})
	for _, opt := range opts {
		opt(m)
	}
	m.client.SetHeader("User-Agent", userAgent)
	return m
}

// Start launches the workers and requeues jobs left pending or interrupted
// by a previous run.
func (m *Manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}

	ctx, m.stop = context.WithCancel(ctx)
	for i := 0; i < m.cfg.MaxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}

	interrupted, err := m.store.IDsByStatus(ctx, StatusDownloading)
	if err != nil {
		return err
	}
	for _, jobID := range interrupted {
		if err := m.store.Reset(ctx, jobID); err != nil {
			m.logger.Warn("Failed to reset interrupted download", zap.String("id", jobID), zap.Error(err))
		}
	}
	pending, err := m.store.IDsByStatus(ctx, StatusPending)
	if err != nil {
		return err
	}
	for _, jobID := range pending {
		m.enqueue(jobID)
	}

	m.logger.Info("Download manager started",
		zap.Int("workers", m.cfg.MaxConcurrent),
		zap.Int("requeued", len(pending)),
		zap.String("dir", m.cfg.Dir),
	)
	return nil
}

// Stop cancels running transfers and waits for the workers
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	m.stop()
	m.wg.Wait()
}

// Add validates in, stores a pending job and queues it
func (m *Manager) Add(ctx context.Context, in AddInput) (*AddResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ext := extensionFromURL(in.URL)
	if ext == "" {
		ext = defaultExt
	}
	name := fileName(in.Singer, in.Name, ext)
	job := &Job{
		ID:       id.NewDownloadID().String(),
		Name:     in.Name,
		Singer:   in.Singer,
		Source:   in.Source,
		MusicID:  in.MusicID,
		Quality:  in.Quality,
		URL:      in.URL,
		FilePath: filepath.Join(m.cfg.Dir, name),
	}
	if err := m.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("Download queued", zap.String("id", job.ID), zap.String("file", name))
	m.enqueue(job.ID)
	return &AddResult{ID: job.ID, FileName: name, Status: StatusPending}, nil
}

// BatchItem is one outcome of AddBatch
type BatchItem struct {
	*AddResult
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

// AddBatch adds every item, reporting failures per item
func (m *Manager) AddBatch(ctx context.Context, items []AddInput) []BatchItem {
	out := make([]BatchItem, 0, len(items))
	for _, in := range items {
		res, err := m.Add(ctx, in)
		if err != nil {
			out = append(out, BatchItem{Name: in.Name, Error: err.Error()})
			continue
		}
		out = append(out, BatchItem{AddResult: res})
	}
	return out
}

// List pages jobs newest first
func (m *Manager) List(ctx context.Context, status Status, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	jobs, total, err := m.store.List(ctx, status, page, limit)
	if err != nil {
		return nil, err
	}
	return &ListResult{List: jobs, Total: total, Page: page, Limit: limit}, nil
}

// Get loads one job
func (m *Manager) Get(ctx context.Context, jobID string) (*Job, error) {
	return m.store.Get(ctx, jobID)
}

// Delete stops any running transfer, removes the file and the job
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	m.cancel(jobID)

	if job.FilePath != "" {
		if err := os.Remove(job.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("Failed to remove download file", zap.String("path", job.FilePath), zap.Error(err))
		}
	}
	return m.store.Delete(ctx, jobID)
}

// DeleteBatch deletes every id it can and reports how many went
func (m *Manager) DeleteBatch(ctx context.Context, ids []string) int {
	n := 0
	for _, jobID := range ids {
		if err := m.Delete(ctx, jobID); err != nil {
			m.logger.Debug("Batch delete skipped", zap.String("id", jobID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// Retry resets a job to pending and queues it again
func (m *Manager) Retry(ctx context.Context, jobID string) error {
	m.cancel(jobID)
	if err := m.store.Reset(ctx, jobID); err != nil {
		return err
	}
	m.enqueue(jobID)
	return nil
}

// ClearCompleted removes completed jobs, leaving their files on disk
func (m *Manager) ClearCompleted(ctx context.Context) (int64, error) {
	return m.store.DeleteByStatus(ctx, StatusCompleted)
}

// Stats counts jobs per status
func (m *Manager) Stats(ctx context.Context) (Summary, error) {
	return m.store.Stats(ctx)
}

func (m *Manager) enqueue(jobID string) {
	select {
	case m.queue <- jobID:
	default:
		// Stays pending and is picked up by the next Start
		m.logger.Warn("Download queue full", zap.String("id", jobID))
	}
}

// cancel stops the job's transfer and waits for its worker to finish
func (m *Manager) cancel(jobID string) {
	m.mu.Lock()
	run, ok := m.active[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	run.cancel()
	<-run.done
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-m.queue:
			m.process(ctx, jobID)
		}
	}
}

// claim registers a run for jobID and marks it downloading. A job that is
// already running or no longer pending yields nil.
func (m *Manager) claim(parent context.Context, jobID string) (*transferRun, context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[jobID]; busy {
		return nil, nil
	}
	ok, err := m.store.Claim(parent, jobID)
	if err != nil {
		m.logger.Error("Failed to start download", zap.String("id", jobID), zap.Error(err))
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(parent)
	run := &transferRun{cancel: cancel, done: make(chan struct{})}
	m.active[jobID] = run
	return run, ctx
}

func (m *Manager) process(parent context.Context, jobID string) {
	job, err := m.store.Get(parent, jobID)
	if err != nil || job.Status != StatusPending {
		return
	}
	run, ctx := m.claim(parent, jobID)
	if run == nil {
		return
	}
	defer func() {
		run.cancel()
		m.mu.Lock()
		delete(m.active, jobID)
		m.mu.Unlock()
		close(run.done)
	}()

	if m.metrics != nil {
		m.metrics.DownloadStarted()
	}

	size, err := m.transfer(ctx, job)
	switch {
	case err == nil:
		m.finish(job, StatusCompleted, size, "")
	case parent.Err() != nil:
		// Shutdown: leave the row for the next Start
		m.finish(job, "", 0, "")
	case ctx.Err() != nil:
		// Deleted or retried while running
		m.finish(job, "", 0, "")
	default:
		m.finish(job, StatusFailed, 0, err.Error())
	}
}

func (m *Manager) finish(job *Job, status Status, size int64, errMsg string) {
	ctx := context.Background()
	if m.metrics != nil {
		label := string(status)
		if label == "" {
			label = "cancelled"
		}
		m.metrics.DownloadFinished(label, size)
	}

	switch status {
	case StatusCompleted:
		if err := m.store.Complete(ctx, job.ID, size); err != nil {
			m.logger.Error("Failed to record completion", zap.String("id", job.ID), zap.Error(err))
		}
		m.logger.Info("Download completed", zap.String("id", job.ID), zap.Int64("bytes", size))
		m.broadcast(job.ID, map[string]any{"status": string(StatusCompleted), "progress": 100})
	case StatusFailed:
		if err := m.store.SetStatus(ctx, job.ID, StatusFailed, errMsg); err != nil {
			m.logger.Error("Failed to record failure", zap.String("id", job.ID), zap.Error(err))
		}
		m.logger.Warn("Download failed", zap.String("id", job.ID), zap.String("error", errMsg))
		m.broadcast(job.ID, map[string]any{"status": string(StatusFailed), "error": errMsg})
	}
}

// transfer streams job.URL into its file and returns the bytes written
func (m *Manager) transfer(ctx context.Context, job *Job) (int64, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(job.URL)
	if err != nil {
		return 0, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= http.StatusBadRequest {
		return 0, fmt.Errorf("request failed with status code %d", resp.StatusCode())
	}

	reader := bufio.NewReaderSize(body, sniffBytes)
	path := job.FilePath
	if extensionFromURL(job.URL) == "" {
		path = m.sniffPath(ctx, job, reader)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	pw := &progressWriter{
		total:    resp.RawResponse.ContentLength,
		interval: m.cfg.ProgressInterval,
		report: func(done, total int64, pct float64) {
			if err := m.store.SetProgress(ctx, job.ID, done, total, pct); err != nil {
				m.logger.Debug("Progress update failed", zap.String("id", job.ID), zap.Error(err))
			}
			m.broadcast(job.ID, map[string]any{
				"status":         string(StatusDownloading),
				"downloadedSize": done,
				"totalSize":      total,
				"progress":       pct,
			})
		},
	}

	n, copyErr := io.Copy(f, io.TeeReader(reader, pw))
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return 0, copyErr
	}
	return n, nil
}

// sniffPath picks an extension from the body when the URL has none
func (m *Manager) sniffPath(ctx context.Context, job *Job, r *bufio.Reader) string {
	head, _ := r.Peek(sniffBytes)
	ext := strings.TrimPrefix(mimetype.Detect(head).Extension(), ".")
	if ext == "" || ext == defaultExt {
		return job.FilePath
	}

	path := filepath.Join(filepath.Dir(job.FilePath), fileName(job.Singer, job.Name, ext))
	if err := m.store.SetFilePath(ctx, job.ID, path); err != nil {
		m.logger.Debug("Failed to record sniffed path", zap.String("id", job.ID), zap.Error(err))
		return job.FilePath
	}
	return path
}

func (m *Manager) broadcast(jobID string, data map[string]any) {
	if m.hub != nil {
		m.hub.BroadcastDownload(jobID, data)
	}
}

// progressWriter counts bytes and reports at most once per interval
type progressWriter struct {
	done     int64
	total    int64
	interval time.Duration
	last     time.Time
	report   func(done, total int64, pct float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		p.last = now
		p.report(p.done, p.total, p.percent())
	}
	return len(b), nil
}

func (p *progressWriter) percent() float64 {
	if p.total <= 0 {
		return 0
	}
	pct := float64(p.done) / float64(p.total) * 100
	return float64(int(pct*100)) / 100
}
