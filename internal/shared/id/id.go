// Package id provides centralized ID generation for the backend.
//
// Two formats are in use:
//   - UUIDv4 for persisted records (sources, downloads), matching the ids
//     stored by earlier deployments of the database
//   - Prefixed ULIDs for ephemeral, time-ordered identifiers (requests,
//     sandbox sessions, trace spans) so log lines sort by creation time
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SourceID identifies a persisted script source
type SourceID string

// DownloadID identifies a download job
type DownloadID string

// RequestID identifies an API request or a resolution call
type RequestID string

// SessionID identifies one sandbox session
type SessionID string

const (
	RequestPrefix = "req"
	SessionPrefix = "sbx"
	SpanPrefix    = "span"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewSourceID generates a new source ID
func NewSourceID() SourceID {
	return SourceID(uuid.NewString())
}

// NewDownloadID generates a new download ID
func NewDownloadID() DownloadID {
	return DownloadID(uuid.NewString())
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSessionID generates a new sandbox session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() string {
	return Default().GenerateWithPrefix(SpanPrefix)
}

func (id SourceID) String() string   { return string(id) }
func (id DownloadID) String() string { return string(id) }
func (id RequestID) String() string  { return string(id) }
func (id SessionID) String() string  { return string(id) }
