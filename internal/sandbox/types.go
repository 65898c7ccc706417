package sandbox

import (
	"context"
	"time"

	"github.com/GriffinCanCode/MusicHub/backend/internal/providers/network"
)

// Config bounds a single session
type Config struct {
	SessionTimeout time.Duration // evaluation plus one invocation
	MaxCallStack   int           // goja call stack depth
	ConsoleLimit   int           // console entries retained per session
	DataLimit      int           // keys retained by lx.data
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		SessionTimeout: 30 * time.Second,
		MaxCallStack:   1024,
		ConsoleLimit:   200,
		DataLimit:      256,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = def.SessionTimeout
	}
	if c.MaxCallStack <= 0 {
		c.MaxCallStack = def.MaxCallStack
	}
	if c.ConsoleLimit <= 0 {
		c.ConsoleLimit = def.ConsoleLimit
	}
	if c.DataLimit <= 0 {
		c.DataLimit = def.DataLimit
	}
	return c
}

// HTTPDoer performs script-issued requests. *network.Client satisfies it.
type HTTPDoer interface {
	Do(ctx context.Context, url string, opts network.Options) *network.Response
}

// ScopedDoer hands out isolated views of a shared client. Each session
// takes its own scope so per-host failure state never crosses sessions.
type ScopedDoer interface {
	HTTPDoer
	Scope(name string) *network.Scope
}

// State is the session lifecycle position
type State int32

const (
	StateUninitialized State = iota
	StateEvaluating
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateEvaluating:
		return "evaluating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LogEntry is one captured console call
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ScriptInfo is the metadata block at the top of a script
type ScriptInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Homepage    string `json:"homepage"`
}

// Platform is one entry a script declared through lx.send("inited")
type Platform struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Actions   []string `json:"actions"`
	Qualities []string `json:"qualities"`
}

// Capabilities maps platform id to what the script says it supports.
// Reported only; resolution order never depends on it.
type Capabilities map[string]Platform

// UpdateAlert is what a script sent through lx.send("updateAlert")
type UpdateAlert struct {
	Log       string `json:"log"`
	UpdateURL string `json:"updateUrl,omitempty"`
}

// SourceRef identifies the platform a multi-platform script should target
type SourceRef struct {
	ID   string
	Name string
}
