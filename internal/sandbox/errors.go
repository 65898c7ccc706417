package sandbox

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrScriptInit            = errors.New("script init failed")
	ErrScriptTimeout         = errors.New("script timed out")
	ErrScriptRuntime         = errors.New("script runtime error")
	ErrOperationNotSupported = errors.New("operation not supported")
	ErrSessionClosed         = errors.New("session closed")
)

// InitError reports that the script body failed to evaluate
type InitError struct {
	Message string
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%v: %s", ErrScriptInit, e.Message)
}

func (e *InitError) Is(target error) bool { return target == ErrScriptInit }

// TimeoutError reports that the session deadline passed during Phase
type TimeoutError struct {
	Phase string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v during %s after %s", ErrScriptTimeout, e.Phase, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrScriptTimeout }

// RuntimeError carries an exception or error payload raised by script code
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrScriptRuntime, e.Message)
}

func (e *RuntimeError) Is(target error) bool { return target == ErrScriptRuntime }

// NotSupportedError means neither calling convention produced a target.
// It is an expected outcome, not a fault.
type NotSupportedError struct {
	Action string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrOperationNotSupported, e.Action)
}

func (e *NotSupportedError) Is(target error) bool { return target == ErrOperationNotSupported }

// Message returns the script-facing text of a sandbox error, without the
// category prefix.
func Message(err error) string {
	var (
		ie *InitError
		re *RuntimeError
	)
	switch {
	case errors.As(err, &ie):
		return ie.Message
	case errors.As(err, &re):
		return re.Message
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}
