package dispatch

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
)

// Config bounds the wait for asynchronous handler registration
type Config struct {
	PollInterval time.Duration
	PollCeiling  time.Duration
	PollBackoff  float64 // multiplier applied to the interval after each check
}

// DefaultConfig checks every 200ms for up to 3s
func DefaultConfig() Config {
	return Config{
		PollInterval: 200 * time.Millisecond,
		PollCeiling:  3 * time.Second,
		PollBackoff:  1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollCeiling <= 0 {
		c.PollCeiling = def.PollCeiling
	}
	if c.PollBackoff < 1 {
		c.PollBackoff = def.PollBackoff
	}
	return c
}

// Kind tags how a session can serve an operation
type Kind int

const (
	None Kind = iota
	Handler
	Export
)

func (k Kind) String() string {
	switch k {
	case Handler:
		return "handler"
	case Export:
		return "export"
	default:
		return "none"
	}
}

// Target is the outcome of probing a session for an operation
type Target struct {
	Kind   Kind
	Action Action
}

// Request is one operation against one platform
type Request struct {
	Operation Operation
	Platform  sandbox.SourceRef
	Info      map[string]any
}

// Dispatcher invokes operations on sessions regardless of calling convention
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a dispatcher
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective poll settings
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Probe waits for the session to expose op. A registered handler wins as
// soon as it appears. An export is accepted early only once the session is
// idle, since nothing can register a handler after that; otherwise the probe
// runs to the poll ceiling.
func (d *Dispatcher) Probe(s *sandbox.Session, op Operation) (Target, error) {
	action, err := ActionFor(op)
	if err != nil {
		return Target{}, err
	}

	deadline := time.Now().Add(d.cfg.PollCeiling)
	wait := d.cfg.PollInterval

	for {
		if s.HasHandler() {
			return Target{Kind: Handler, Action: action}, nil
		}
		if s.Idle() && s.HasExport(action.Export) {
			return Target{Kind: Export, Action: action}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if wait > remaining {
			wait = remaining
		}
		if err := s.RunFor(wait); err != nil {
			return Target{}, err
		}
		wait = time.Duration(float64(wait) * d.cfg.PollBackoff)
	}

	if s.HasExport(action.Export) {
		return Target{Kind: Export, Action: action}, nil
	}
	return Target{Kind: None, Action: action}, nil
}

// Invoke runs req on s and returns the script's result as plain Go data.
// Script faults come back as typed sandbox errors; a payload carrying a
// non-empty error string is a RuntimeError.
func (d *Dispatcher) Invoke(s *sandbox.Session, req Request) (any, error) {
	target, err := d.Probe(s, req.Operation)
	if err != nil {
		return nil, err
	}

	info := WithDefaults(req.Operation, req.Info)
	logger := d.logger.With(
		zap.String("session", s.ID().String()),
		zap.String("operation", req.Operation.String()),
		zap.String("platform", req.Platform.ID),
		zap.Stringer("target", target.Kind),
	)

	var out any
	switch target.Kind {
	case Handler:
		out, err = s.InvokeHandler(target.Action.Handler, req.Platform, info)
	case Export:
		out, err = s.CallExport(target.Action.Export, req.Platform, info)
	default:
		logger.Debug("operation not supported by script")
		return nil, &sandbox.NotSupportedError{Action: target.Action.Handler}
	}
	if err != nil {
		logger.Debug("script invocation failed", zap.Error(err))
		return nil, err
	}

	if msg := errorPayload(out); msg != "" {
		logger.Debug("script returned error payload", zap.String("error", msg))
		return nil, &sandbox.RuntimeError{Message: msg}
	}
	return out, nil
}

func errorPayload(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := m["error"].(string)
	return msg
}
