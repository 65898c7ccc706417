package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "development", cfg: DevelopmentConfig()},
		{name: "empty output paths", cfg: Config{Level: "warn"}},
		{name: "invalid level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger.Logger)
		})
	}
}

func TestFromLevelFallsBack(t *testing.T) {
	logger := FromLevel("not-a-level", false)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)

	dev := FromLevel("debug", true)
	assert.True(t, dev.Core().Enabled(-1))
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("discarded")
	assert.False(t, logger.Core().Enabled(0))
}
