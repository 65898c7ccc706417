package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox/dispatch"
)

var (
	ErrResolutionFailed = errors.New("resolution failed")
	errInvalidResult    = errors.New("result did not satisfy the operation")
)

// NoSourcesMessage is reported in place of results when nothing is enabled
const NoSourcesMessage = "no enabled sources: add and enable a custom source first"

// AggregateError reports that every enabled source was tried and none
// produced a valid result
type AggregateError struct {
	Operation dispatch.Operation
	Attempted int
	LastErr   error
	Attempts  []Attempt
}

func (e *AggregateError) Error() string {
	last := "no result"
	if e.LastErr != nil {
		last = e.LastErr.Error()
	}
	return fmt.Sprintf("%v: %s tried %d sources, last error: %s", ErrResolutionFailed, e.Operation, e.Attempted, last)
}

func (e *AggregateError) Is(target error) bool { return target == ErrResolutionFailed }

func (e *AggregateError) Unwrap() error { return e.LastErr }

// Summary lists each attempt's source and outcome on one line
func (e *AggregateError) Summary() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.SourceName+"="+a.Outcome)
	}
	return strings.Join(parts, ", ")
}
