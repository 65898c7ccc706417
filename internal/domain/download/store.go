package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, name, singer, source, music_id, quality, url, file_path,
	file_size, downloaded_size, status, progress, error, create_time, update_time`

// Store persists jobs in the downloads table
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Insert stores a new pending job
func (s *Store) Insert(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (id, name, singer, source, music_id, quality, url, file_path, status, create_time, update_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, j.Singer, j.Source, j.MusicID, j.Quality, j.URL, j.FilePath, string(StatusPending), s.stamp(), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert download: %w", err)
	}
	return nil
}

// Get loads one job
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM downloads WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load download: %w", err)
	}
	return j, nil
}

// List returns one page of jobs, optionally filtered by status
func (s *Store) List(ctx context.Context, status Status, page, limit int) ([]Job, int, error) {
	where, args := "", []any{}
	if status != "" {
		where, args = " WHERE status = ?", append(args, string(status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloads`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count downloads: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM downloads`+where+` ORDER BY create_time DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan download: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, total, rows.Err()
}

// IDsByStatus lists job ids in creation order
func (s *Store) IDsByStatus(ctx context.Context, status Status) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM downloads WHERE status = ? ORDER BY create_time ASC, id ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus moves a job to status, recording errMsg for failures
func (s *Store) SetStatus(ctx context.Context, jobID string, status Status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET status = ?, error = ?, update_time = ? WHERE id = ?`,
		string(status), nullString(errMsg), s.stamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	return nil
}

// Claim moves a pending job to downloading. It reports false when another
// worker got there first or the job is no longer pending.
func (s *Store) Claim(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET status = ?, error = NULL, update_time = ? WHERE id = ? AND status = ?`,
		string(StatusDownloading), s.stamp(), jobID, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim download: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim download: %w", err)
	}
	return n == 1, nil
}

// SetProgress records transfer progress
func (s *Store) SetProgress(ctx context.Context, jobID string, downloaded, total int64, progress float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET downloaded_size = ?, file_size = ?, progress = ?, update_time = ? WHERE id = ?`,
		downloaded, total, progress, s.stamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// SetFilePath records where the transfer is written
func (s *Store) SetFilePath(ctx context.Context, jobID, path string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE downloads SET file_path = ? WHERE id = ?`, path, jobID)
	if err != nil {
		return fmt.Errorf("failed to update file path: %w", err)
	}
	return nil
}

// Complete marks a job done with its final size
func (s *Store) Complete(ctx context.Context, jobID string, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET status = ?, file_size = ?, downloaded_size = ?, progress = 100, error = NULL, update_time = ? WHERE id = ?`,
		string(StatusCompleted), size, size, s.stamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete download: %w", err)
	}
	return nil
}

// Reset returns a job to pending with cleared progress
func (s *Store) Reset(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET status = ?, error = NULL, progress = 0, downloaded_size = 0, update_time = ? WHERE id = ?`,
		string(StatusPending), s.stamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset download: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

// Delete removes a job row
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	return nil
}

// DeleteByStatus removes every job in status and reports how many went
func (s *Store) DeleteByStatus(ctx context.Context, status Status) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE status = ?`, string(status))
	if err != nil {
		return 0, fmt.Errorf("failed to clear downloads: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts jobs per status
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	var sum Summary
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(SUM(file_size), 0) FROM downloads GROUP BY status`)
	if err != nil {
		return sum, fmt.Errorf("failed to summarize downloads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
			size   int64
		)
		if err := rows.Scan(&status, &count, &size); err != nil {
			return sum, err
		}
		sum.Total += count
		sum.TotalSize += size
		switch Status(status) {
		case StatusPending:
			sum.Pending = count
		case StatusDownloading:
			sum.Downloading = count
		case StatusCompleted:
			sum.Completed = count
		case StatusFailed:
			sum.Failed = count
		}
	}
	return sum, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j                                  Job
		singer, quality, url, path, errMsg sql.NullString
		fileSize, downloaded               sql.NullInt64
		progress                           sql.NullFloat64
		status                             string
		created, updated                   any
	)
	err := row.Scan(&j.ID, &j.Name, &singer, &j.Source, &j.MusicID, &quality, &url, &path,
		&fileSize, &downloaded, &status, &progress, &errMsg, &created, &updated)
	if err != nil {
		return nil, err
	}

	j.Singer, j.Quality, j.URL, j.FilePath, j.Error = singer.String, quality.String, url.String, path.String, errMsg.String
	j.FileSize, j.DownloadedSize = fileSize.Int64, downloaded.Int64
	j.Progress = progress.Float64
	j.Status = Status(status)
	j.CreatedAt, j.UpdatedAt = parseTime(created), parseTime(updated)
	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const timeLayout = "2006-01-02 15:04:05.000"

func parseTime(v any) time.Time {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
