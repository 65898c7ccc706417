package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// install populates the global scope: console, session-scoped timers,
// Buffer and the lx host object. Node and browser escape hatches are
// explicitly undefined.
func (s *Session) install() {
	vm := s.vm

	for _, name := range []string{"require", "process", "module", "exports", "__dirname", "__filename"} {
		_ = vm.Set(name, goja.Undefined())
	}

	s.uint8Array, _ = goja.AssertConstructor(vm.Get("Uint8Array"))
	s.errorCtor, _ = goja.AssertConstructor(vm.Get("Error"))
	jsonObj := vm.Get("JSON").ToObject(vm)
	s.jsonParse, _ = goja.AssertFunction(jsonObj.Get("parse"))
	s.jsonStringify, _ = goja.AssertFunction(jsonObj.Get("stringify"))

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, s.consoleFunc(level))
	}
	_ = vm.Set("console", console)

	_ = vm.Set("setTimeout", s.setTimer(false))
	_ = vm.Set("setInterval", s.setTimer(true))
	_ = vm.Set("clearTimeout", s.clearTimer)
	_ = vm.Set("clearInterval", s.clearTimer)

	_ = vm.Set("Buffer", s.bufferObject())
	_ = vm.Set("lx", s.lxObject())
}

func (s *Session) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, s.display(arg))
		}
		s.log(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// display renders objects as JSON, the way most consoles do
func (s *Session) display(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); !isFn && obj.ClassName() != "Error" {
			if str, err := s.jsonStringify(goja.Undefined(), obj); err == nil && !goja.IsUndefined(str) {
				return str.String()
			}
		}
	}
	return fmt.Sprint(v)
}

func (s *Session) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			// String bodies are not evaluated
			return s.vm.ToValue(0)
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		return s.vm.ToValue(s.loop.schedule(fn, delay, repeat, args))
	}
}

func (s *Session) clearTimer(call goja.FunctionCall) goja.Value {
	s.loop.clear(call.Argument(0).ToInteger())
	return goja.Undefined()
}

// resolved returns an already-fulfilled promise
func (s *Session) resolved(v any) goja.Value {
	p, resolve, _ := s.vm.NewPromise()
	resolve(v)
	return s.vm.ToValue(p)
}

// rejected returns a promise rejected with an Error carrying msg
func (s *Session) rejected(msg string) goja.Value {
	p, _, reject := s.vm.NewPromise()
	reject(s.newError(msg))
	return s.vm.ToValue(p)
}

func (s *Session) newError(msg string) goja.Value {
	if s.errorCtor != nil {
		if obj, err := s.errorCtor(nil, s.vm.ToValue(msg)); err == nil {
			return obj
		}
	}
	return s.vm.ToValue(msg)
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
