package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/resolver"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/MusicHub/backend/internal/providers/network"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox/dispatch"
)

// Runtime is the script execution stack shared by the API server and the CLI
type Runtime struct {
	Host   *sandbox.Host
	Engine *resolver.Engine
}

// Validate adapts the host for the source store
func (r *Runtime) Validate(ctx context.Context, script string) error {
	_, err := r.Host.Validate(ctx, script, 0)
	return err
}

// NewRuntime builds the network client, sandbox host, dispatcher and
// resolution engine from cfg. metrics and tracer may be nil.
func NewRuntime(cfg *config.Config, sources resolver.SourceLister, logger *zap.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) (*Runtime, error) {
	policy, err := resolver.ParsePolicy(cfg.Resolver.SearchPolicy)
	if err != nil {
		return nil, err
	}

	client := network.NewClient(network.Config{
		Timeout:    cfg.Sandbox.HTTPTimeout,
		UserAgent:  cfg.Sandbox.UserAgent,
		RateLimit:  cfg.Sandbox.HTTPRateLimit,
		MaxRetries: network.DefaultConfig().MaxRetries,
	}, logger.Named("network"))

	scfg := sandbox.DefaultConfig()
	scfg.SessionTimeout = cfg.Sandbox.SessionTimeout
	scfg.MaxCallStack = cfg.Sandbox.MaxCallStack
	host := sandbox.NewHost(scfg, client, logger.Named("sandbox"))

	dispatcher := dispatch.New(dispatch.Config{
		PollInterval: cfg.Sandbox.PollInterval,
		PollCeiling:  cfg.Sandbox.PollCeiling,
		PollBackoff:  cfg.Sandbox.PollBackoff,
	}, logger.Named("dispatch"))

	rcfg := resolver.DefaultConfig()
	rcfg.SearchPolicy = policy
	rcfg.SearchConcurrency = cfg.Resolver.SearchConcurrency
	engine := resolver.NewEngine(sources, host, dispatcher, rcfg, logger.Named("resolver"))

	if metrics != nil {
		client.WithMetrics(metrics)
		host.WithMetrics(metrics)
		engine.WithMetrics(metrics)
	}
	if tracer != nil {
		engine.WithTracer(tracer)
	}
	return &Runtime{Host: host, Engine: engine}, nil
}
