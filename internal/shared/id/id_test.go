package id

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate().String(), gen.Generate().String())
	assert.Len(t, gen.GenerateString(), 26)
}

func TestPrefixedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{name: "request", id: NewRequestID().String(), prefix: RequestPrefix},
		{name: "session", id: NewSessionID().String(), prefix: SessionPrefix},
		{name: "span", id: NewSpanID(), prefix: SpanPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix+"_"))
			_, err := ulid.Parse(strings.TrimPrefix(tt.id, tt.prefix+"_"))
			assert.NoError(t, err)
		})
	}
}

func TestRecordIDsAreUUIDs(t *testing.T) {
	_, err := uuid.Parse(NewSourceID().String())
	assert.NoError(t, err)
	_, err = uuid.Parse(NewDownloadID().String())
	assert.NoError(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := gen.GenerateString()
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}
