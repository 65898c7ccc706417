package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
)

// ManifestFile optionally describes the scripts in a seed directory
const ManifestFile = "sources.toml"

// Manifest is the parsed sources.toml
type Manifest struct {
	Sources []ManifestEntry `toml:"source"`
}

// ManifestEntry overrides defaults for one script file
type ManifestEntry struct {
	File     string `toml:"file"`
	Name     string `toml:"name"`
	Priority int    `toml:"priority"`
	Enabled  *bool  `toml:"enabled"`
}

// SeedResult counts what a seed run did
type SeedResult struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Seeder imports script files into the store on startup
type Seeder struct {
	store  *Store
	fsys   fs.FS
	logger *zap.Logger
}

// NewSeeder creates a seeder reading from dir
func NewSeeder(store *Store, dir string, logger *zap.Logger) *Seeder {
	return NewSeederFS(store, os.DirFS(dir), logger)
}

// NewSeederFS creates a seeder reading from fsys
func NewSeederFS(store *Store, fsys fs.FS, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, fsys: fsys, logger: logger}
}

// Seed imports every *.js file below the root. Sources whose name already
// exists are skipped; scripts that fail validation are counted and logged.
func (s *Seeder) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult

	manifest, err := s.manifest()
	if err != nil {
		return result, err
	}
	entries := make(map[string]ManifestEntry, len(manifest.Sources))
	for _, e := range manifest.Sources {
		entries[path.Clean(e.File)] = e
	}

	files, err := doublestar.Glob(s.fsys, "**/*.js")
	if err != nil {
		return result, fmt.Errorf("failed to scan seed directory: %w", err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		switch loaded, err := s.load(ctx, file, entries[file]); {
		case err != nil:
			s.logger.Warn("failed to seed source", zap.String("file", file), zap.Error(err))
			result.Failed++
		case loaded:
			result.Loaded++
		default:
			result.Skipped++
		}
	}

	s.logger.Info("source seeding complete",
		zap.Int("loaded", result.Loaded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Seeder) manifest() (Manifest, error) {
	var m Manifest
	data, err := fs.ReadFile(s.fsys, ManifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}
	return m, nil
}

func (s *Seeder) load(ctx context.Context, file string, entry ManifestEntry) (bool, error) {
	data, err := fs.ReadFile(s.fsys, file)
	if err != nil {
		return false, err
	}
	script := string(data)

	name := entry.Name
	if name == "" {
		name = sandbox.ParseScriptInfo(script).Name
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil || exists {
		return false, err
	}

	src, err := s.store.Create(ctx, CreateInput{
		Name:     name,
		Script:   script,
		Enabled:  entry.Enabled,
		Priority: entry.Priority,
	})
	if err != nil {
		return false, err
	}
	s.logger.Debug("seeded source", zap.String("file", file), zap.String("id", src.ID))
	return true, nil
}
