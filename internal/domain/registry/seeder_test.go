package registry

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	fsys := fstest.MapFS{
		"sources.toml": {Data: []byte(`
[[source]]
file = "nested/kg.js"
name = "Kugou Mirror"
priority = 20

[[source]]
file = "off.js"
enabled = false
`)},
		"kw.js":        {Data: []byte("/**\n * @name Kuwo\n */\nvar kw = 1")},
		"nested/kg.js": {Data: []byte("var kg = 1")},
		"off.js":       {Data: []byte("/** @name ignored */ var off = 1")},
		"broken.js":    {Data: []byte("/**\n * @name Broken\n */\nbad")},
		"readme.txt":   {Data: []byte("not a script")},
	}

	ctx := context.Background()
	store := newStore(t)
	seeder := NewSeederFS(store, fsys, nil)

	result, err := seeder.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Loaded: 3, Failed: 1}, result)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Kugou Mirror", all[0].Name)
	assert.Equal(t, 20, all[0].Priority)

	byName := map[string]Source{}
	for _, s := range all {
		byName[s.Name] = s
	}
	assert.Contains(t, byName, "Kuwo")
	require.Contains(t, byName, "Custom Source")
	assert.False(t, byName["Custom Source"].Enabled)

	again, err := seeder.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Skipped: 3, Failed: 1}, again)
}

func TestSeedBadManifest(t *testing.T) {
	fsys := fstest.MapFS{"sources.toml": {Data: []byte("[[source]\nfile=")}}
	_, err := NewSeederFS(newStore(t), fsys, nil).Seed(context.Background())
	assert.Error(t, err)
}
