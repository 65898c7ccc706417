package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/shared/id"
)

// ValidateFunc checks that a script evaluates before it is stored
type ValidateFunc func(ctx context.Context, script string) error

const sourceColumns = `id, name, type, script, enabled, priority, create_time, update_time`

// Store persists sources in SQLite
type Store struct {
	db       *sql.DB
	validate ValidateFunc
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates a source store. validate may be nil to skip script checks.
func NewStore(db *sql.DB, validate ValidateFunc, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, validate: validate, logger: logger, now: time.Now}
}

// List returns every source, highest priority first
func (s *Store) List(ctx context.Context) ([]Source, error) {
	return s.query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY priority DESC, name ASC`)
}

// ListEnabled returns enabled sources in fallback order
func (s *Store) ListEnabled(ctx context.Context) ([]Source, error) {
	return s.query(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled = 1 ORDER BY priority DESC, name ASC`)
}

// Get loads one source
func (s *Store) Get(ctx context.Context, sourceID string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, sourceID)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return src, nil
}

// Exists reports whether a source with name is stored
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sources WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up source: %w", err)
	}
	return n > 0, nil
}

// Create validates and stores a new source
func (s *Store) Create(ctx context.Context, in CreateInput) (*Source, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || strings.TrimSpace(in.Script) == "" {
		return nil, fmt.Errorf("%w: name and script are required", ErrInvalidSource)
	}
	if in.Type == "" {
		in.Type = DefaultType
	}
	if err := s.check(ctx, in.Script); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	src := &Source{
		ID:        id.NewSourceID().String(),
		Name:      in.Name,
		Type:      in.Type,
		Script:    in.Script,
		Enabled:   in.Enabled == nil || *in.Enabled,
		Priority:  in.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.Type, src.Script, boolInt(src.Enabled), src.Priority, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	s.logger.Info("source created", zap.String("id", src.ID), zap.String("name", src.Name), zap.Int("priority", src.Priority))
	return src, nil
}

// Update applies in to a stored source. The script is re-validated only
// when it changes.
func (s *Store) Update(ctx context.Context, sourceID string, in UpdateInput) (*Source, error) {
	src, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidSource)
		}
		src.Name = name
	}
	if in.Script != nil && *in.Script != src.Script {
		if err := s.check(ctx, *in.Script); err != nil {
			return nil, err
		}
		src.Script = *in.Script
	}
	if in.Enabled != nil {
		src.Enabled = *in.Enabled
	}
	if in.Priority != nil {
		src.Priority = *in.Priority
	}
	src.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE sources SET name = ?, script = ?, enabled = ?, priority = ?, update_time = ? WHERE id = ?`,
		src.Name, src.Script, boolInt(src.Enabled), src.Priority, formatTime(src.UpdatedAt), src.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update source: %w", err)
	}
	return src, nil
}

// Delete removes a source
func (s *Store) Delete(ctx context.Context, sourceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	s.logger.Info("source deleted", zap.String("id", sourceID))
	return nil
}

// Toggle flips the enabled flag
func (s *Store) Toggle(ctx context.Context, sourceID string) (*Source, error) {
	src, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	enabled := !src.Enabled
	return s.Update(ctx, sourceID, UpdateInput{Enabled: &enabled})
}

func (s *Store) check(ctx context.Context, script string) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(ctx, script)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	out := make([]Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var (
		src              Source
		enabled          int
		created, updated any
	)
	if err := row.Scan(&src.ID, &src.Name, &src.Type, &src.Script, &enabled, &src.Priority, &created, &updated); err != nil {
		return nil, err
	}
	src.Enabled = enabled != 0
	src.CreatedAt = parseTime(created)
	src.UpdatedAt = parseTime(updated)
	return &src, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts what the driver hands back for DATETIME columns
func parseTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		return parseTimeString(x)
	case []byte:
		return parseTimeString(string(x))
	default:
		return time.Time{}
	}
}

func parseTimeString(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
