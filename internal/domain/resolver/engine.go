package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/ranking"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox/dispatch"
)

// SourceLister supplies enabled sources in fallback order
type SourceLister interface {
	ListEnabled(ctx context.Context) ([]registry.Source, error)
}

// Policy decides how Search treats multiple sources
type Policy string

const (
	// PolicyFallback tries sources in order until one returns items
	PolicyFallback Policy = "fallback"
	// PolicyFirst queries only the highest-priority source
	PolicyFirst Policy = "first"
	// PolicyAggregate queries every source concurrently and keeps each
	// non-empty result, in priority order
	PolicyAggregate Policy = "aggregate"
)

// ParsePolicy validates a policy name; empty means fallback
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case "":
		return PolicyFallback, nil
	case PolicyFallback, PolicyFirst, PolicyAggregate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown search policy %q", name)
	}
}

// Config tunes the engine
type Config struct {
	SearchPolicy      Policy
	SearchConcurrency int
	// ValidateSettle is how long validation lets async setup run so that
	// declared capabilities can be reported
	ValidateSettle time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		SearchPolicy:      PolicyFallback,
		SearchConcurrency: 4,
		ValidateSettle:    500 * time.Millisecond,
	}
}

// Attempt is one source's outcome during a resolution
type Attempt struct {
	SourceID   string        `json:"sourceId"`
	SourceName string        `json:"sourceName"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Attempt outcomes, also used as metric labels
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeUnsupported = "unsupported"
	OutcomeInitError   = "init_error"
	OutcomeTimeout     = "timeout"
	OutcomeRuntime     = "runtime_error"
	OutcomeCancelled   = "cancelled"
)

// accept checks an operation's success predicate and normalizes the value
type accept func(v any) (any, bool)

// call is one operation request, resolved per source
type call struct {
	op       dispatch.Operation
	platform string
	info     map[string]any
	accept   accept
}

// hit is a source's accepted, normalized result
type hit struct {
	value  any
	source registry.Source
}

// Engine runs operations across enabled sources
type Engine struct {
	sources    SourceLister
	host       *sandbox.Host
	dispatcher *dispatch.Dispatcher
	catalog    *ranking.Catalog
	cfg        Config
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
}

// NewEngine creates a resolution engine
func NewEngine(sources SourceLister, host *sandbox.Host, dispatcher *dispatch.Dispatcher, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.SearchPolicy == "" {
		cfg.SearchPolicy = def.SearchPolicy
	}
	if cfg.SearchConcurrency <= 0 {
		cfg.SearchConcurrency = def.SearchConcurrency
	}
	if cfg.ValidateSettle < 0 {
		cfg.ValidateSettle = 0
	}
	return &Engine{
		sources:    sources,
		host:       host,
		dispatcher: dispatcher,
		catalog:    ranking.Builtin(),
		cfg:        cfg,
		logger:     logger,
	}
}

// WithMetrics attaches a metrics collector
func (e *Engine) WithMetrics(m *monitoring.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithTracer attaches a tracer; each resolution becomes one span
func (e *Engine) WithTracer(t *tracing.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithCatalog replaces the built-in ranking catalog
func (e *Engine) WithCatalog(c *ranking.Catalog) *Engine {
	e.catalog = c
	return e
}

// Config returns the effective config
func (e *Engine) Config() Config {
	return e.cfg
}

// enabled reads the source list once; later changes do not affect the call
func (e *Engine) enabled(ctx context.Context) ([]registry.Source, error) {
	sources, err := e.sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// fallback tries sources in order and returns the first accepted result
func (e *Engine) fallback(ctx context.Context, sources []registry.Source, c call) (*hit, []Attempt, error) {
	attempts := make([]Attempt, 0, len(sources))
	var lastErr error

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		value, attempt, err := e.attempt(ctx, src, c)
		attempts = append(attempts, attempt)
		if err == nil {
			return &hit{value: value, source: src}, attempts, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempts, ctxErr
		}
		lastErr = err
	}

	return nil, attempts, &AggregateError{
		Operation: c.op,
		Attempted: len(attempts),
		LastErr:   lastErr,
		Attempts:  attempts,
	}
}

// attempt runs c against one source in a fresh session
func (e *Engine) attempt(ctx context.Context, src registry.Source, c call) (any, Attempt, error) {
	start := time.Now()
	a := Attempt{SourceID: src.ID, SourceName: src.Name}

	value, err := e.run(ctx, src, c)
	a.Duration = time.Since(start)
	a.Outcome = outcomeOf(err)
	if err != nil {
		a.Error = sandbox.Message(err)
	}

	if e.metrics != nil {
		e.metrics.RecordAttempt(c.op.String(), a.Outcome)
	}

	fields := []zap.Field{
		zap.String("source", src.Name),
		zap.String("operation", c.op.String()),
		zap.String("platform", c.platform),
		zap.Duration("duration", a.Duration),
	}
	fields = append(fields, tracing.Fields(ctx)...)
	switch a.Outcome {
	case OutcomeSuccess:
		e.logger.Debug("source attempt succeeded", fields...)
	case OutcomeUnsupported, OutcomeInvalid:
		e.logger.Debug("source attempt produced nothing", append(fields, zap.Error(err))...)
	default:
		e.logger.Warn("source attempt failed", append(fields, zap.Error(err))...)
	}
	return value, a, err
}

func (e *Engine) run(ctx context.Context, src registry.Source, c call) (any, error) {
	s, err := e.host.Create(ctx, src.Name, src.Script)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out, err := e.dispatcher.Invoke(s, dispatch.Request{
		Operation: c.op,
		Platform:  platformRef(c.platform, src),
		Info:      c.info,
	})
	if err != nil {
		return nil, err
	}

	value, ok := c.accept(out)
	if !ok {
		return nil, errInvalidResult
	}
	return value, nil
}

// platformRef targets the requested platform, or the source itself when
// the caller named none
func platformRef(platform string, src registry.Source) sandbox.SourceRef {
	if platform == "" {
		return sandbox.SourceRef{ID: src.ID, Name: src.Name}
	}
	return sandbox.SourceRef{ID: platform, Name: platform}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, errInvalidResult):
		return OutcomeInvalid
	case errors.Is(err, sandbox.ErrOperationNotSupported):
		return OutcomeUnsupported
	case errors.Is(err, sandbox.ErrScriptInit):
		return OutcomeInitError
	case errors.Is(err, sandbox.ErrScriptTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeRuntime
	}
}

// span starts a trace span and metrics timer for one resolution
func (e *Engine) span(ctx context.Context, op dispatch.Operation) (context.Context, func(result string, err error)) {
	timer := monitoring.NewTimer(e.metrics, op.String())
	if e.tracer == nil {
		return ctx, func(result string, _ error) { timer.Stop(result) }
	}

	span, ctx := e.tracer.StartSpan(ctx, "resolve."+op.String())
	return ctx, func(result string, err error) {
		timer.Stop(result)
		span.SetTag("result", result)
		if err != nil {
			span.SetError(err)
		}
		e.tracer.Finish(span)
	}
}

func resultOf(err error, noSources bool) string {
	switch {
	case noSources:
		return "no_sources"
	case err != nil:
		return "failed"
	default:
		return "success"
	}
}
