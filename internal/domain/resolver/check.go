package resolver

import (
	"context"
	"time"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox/dispatch"
)

// TestKeyword is searched for when testing a source
const TestKeyword = "test"

// TestResults mirrors the per-operation fields clients already read
type TestResults struct {
	Search          bool   `json:"search"`
	SearchError     string `json:"searchError,omitempty"`
	GetTopList      bool   `json:"getTopList"`
	GetTopListError string `json:"getTopListError,omitempty"`
}

// TestReport describes how one source behaves in isolation
type TestReport struct {
	Success      bool                 `json:"success"`
	Results      TestResults          `json:"results"`
	Info         sandbox.ScriptInfo   `json:"info"`
	Capabilities sandbox.Capabilities `json:"capabilities,omitempty"`
	Duration     time.Duration        `json:"duration"`
}

// Test runs Search and the ranking list operation against src alone. An
// operation passes when the script answers without a fault, whatever it
// returns.
func (e *Engine) Test(ctx context.Context, src registry.Source) (*TestReport, error) {
	start := time.Now()
	report := &TestReport{Info: sandbox.ParseScriptInfo(src.Script)}

	v, err := e.Validate(ctx, src.Script)
	if err != nil {
		report.Results.SearchError = sandbox.Message(err)
		report.Results.GetTopListError = report.Results.SearchError
		report.Duration = time.Since(start)
		return report, nil
	}
	report.Capabilities = v.Capabilities

	if err := e.probe(ctx, src, dispatch.Search, dispatch.SearchInfo(TestKeyword, 1, 0)); err != nil {
		report.Results.SearchError = sandbox.Message(err)
	} else {
		report.Results.Search = true
	}
	if err := e.probe(ctx, src, dispatch.ResolveRankingList, dispatch.WithDefaults(dispatch.ResolveRankingList, nil)); err != nil {
		report.Results.GetTopListError = sandbox.Message(err)
	} else {
		report.Results.GetTopList = true
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	report.Success = report.Results.Search || report.Results.GetTopList
	report.Duration = time.Since(start)
	return report, nil
}

func (e *Engine) probe(ctx context.Context, src registry.Source, op dispatch.Operation, info map[string]any) error {
	_, err := e.run(ctx, src, call{
		op:     op,
		info:   info,
		accept: func(v any) (any, bool) { return v, true },
	})
	return err
}
