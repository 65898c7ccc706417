package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/providers/network"
	"github.com/GriffinCanCode/MusicHub/backend/internal/shared/id"
)

const (
	phaseEvaluate = "evaluate"
	phaseInvoke   = "invoke"
	phaseWait     = "wait"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Host creates sessions sharing one network client, logger and config
type Host struct {
	cfg     Config
	http    HTTPDoer
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHost creates a session factory. A nil doer disables outbound requests.
func NewHost(cfg Config, doer HTTPDoer, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if doer == nil {
		doer = offline{}
	}
	return &Host{cfg: cfg.withDefaults(), http: doer, logger: logger}
}

// WithMetrics attaches a metrics collector
func (h *Host) WithMetrics(m *monitoring.Metrics) *Host {
	h.metrics = m
	return h
}

// Config returns the effective session config
func (h *Host) Config() Config {
	return h.cfg
}

// Create evaluates script in a fresh, isolated session. The session
// deadline starts now and covers evaluation plus one invocation.
func (h *Host) Create(ctx context.Context, name, script string) (*Session, error) {
	s := h.open(ctx, name, ParseScriptInfo(script))
	if err := s.evaluate(script); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Validation summarizes a script that evaluated successfully
type Validation struct {
	Info         ScriptInfo   `json:"info"`
	Capabilities Capabilities `json:"capabilities,omitempty"`
	HasHandler   bool         `json:"hasHandler"`
	Console      []LogEntry   `json:"console,omitempty"`
}

// Validate evaluates script without invoking any operation. It fails
// exactly when Create fails, with the same error. On success the session is
// given up to settle to finish async setup so declared capabilities can be
// reported; faults during settling do not fail validation.
func (h *Host) Validate(ctx context.Context, script string, settle time.Duration) (*Validation, error) {
	s, err := h.Create(ctx, "validate", script)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if settle > 0 {
		if err := s.Settle(settle); err != nil {
			h.logger.Debug("script did not settle during validation", zap.Error(err))
		}
	}

	return &Validation{
		Info:         s.Info(),
		Capabilities: s.Capabilities(),
		HasHandler:   s.HasHandler(),
		Console:      s.Console(),
	}, nil
}

// Session owns one evaluation of one script. It is not safe for concurrent
// use: the goroutine that created it drives its event loop.
type Session struct {
	id      id.SessionID
	name    string
	cfg     Config
	http    HTTPDoer
	logger  *zap.Logger
	metrics *monitoring.Metrics

	vm   *goja.Runtime
	loop *loop

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	state   atomic.Int32
	phase   string
	action  string
	fault   error
	jobErr  error
	created time.Time

	info     ScriptInfo
	handlers map[string]goja.Callable
	caps     Capabilities
	alert    *UpdateAlert
	data     map[string]goja.Value

	consoleMu sync.Mutex
	console   []LogEntry

	uint8Array    goja.Constructor
	errorCtor     goja.Constructor
	jsonParse     goja.Callable
	jsonStringify goja.Callable
}

func (h *Host) open(parent context.Context, name string, info ScriptInfo) *Session {
	ctx, cancel := context.WithTimeout(parent, h.cfg.SessionTimeout)

	vm := goja.New()
	vm.SetMaxCallStackSize(h.cfg.MaxCallStack)

	sid := id.NewSessionID()
	doer := h.http
	if scoped, ok := doer.(ScopedDoer); ok {
		doer = scoped.Scope(sid.String())
	}
	s := &Session{
		id:       sid,
		name:     name,
		cfg:      h.cfg,
		http:     doer,
		logger:   h.logger.With(zap.String("session", sid.String()), zap.String("source", name)),
		metrics:  h.metrics,
		vm:       vm,
		parent:   parent,
		ctx:      ctx,
		cancel:   cancel,
		created:  time.Now(),
		info:     info,
		handlers: make(map[string]goja.Callable),
		data:     make(map[string]goja.Value),
	}
	s.loop = newLoop(func(fn goja.Callable, args []goja.Value) {
		s.callback(fn, goja.Undefined(), args...)
	})
	s.install()

	go s.watch()

	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	return s
}

// watch interrupts running script code once the session context ends
func (s *Session) watch() {
	select {
	case <-s.ctx.Done():
		s.vm.Interrupt(s.ctx.Err())
	case <-s.loop.closed:
	}
}

func (s *Session) evaluate(script string) (err error) {
	defer s.recoverFault(&err)

	s.setState(StateEvaluating)
	s.phase = phaseEvaluate

	if _, err := s.vm.RunString(script); err != nil {
		return s.fail(s.classify(err, func(msg string) error { return &InitError{Message: msg} }))
	}

	s.setState(StateReady)
	s.logger.Debug("script evaluated", zap.Duration("elapsed", time.Since(s.created)))
	return nil
}

// ID returns the session identifier
func (s *Session) ID() id.SessionID { return s.id }

// Name returns the source name the session was created for
func (s *Session) Name() string { return s.name }

// State returns the lifecycle state
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed || s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// Info returns the parsed script header
func (s *Session) Info() ScriptInfo { return s.info }

// Capabilities returns what the script declared through lx.send("inited")
func (s *Session) Capabilities() Capabilities {
	out := make(Capabilities, len(s.caps))
	for k, v := range s.caps {
		out[k] = v
	}
	return out
}

// UpdateAlert returns the script's update notice, if it sent one
func (s *Session) UpdateAlert() *UpdateAlert { return s.alert }

// Console returns a copy of captured console output
func (s *Session) Console() []LogEntry {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	return append([]LogEntry(nil), s.console...)
}

// HasHandler reports whether a request handler is registered via lx.on
func (s *Session) HasHandler() bool {
	_, ok := s.handlers[EventRequest]
	return ok
}

// HasExport reports whether the script defines a global function name
func (s *Session) HasExport(name string) bool {
	_, ok := s.export(name)
	return ok
}

// Idle reports whether no timer or bridge request can still run script code
func (s *Session) Idle() bool {
	return s.loop.idle()
}

func (s *Session) export(name string) (goja.Callable, bool) {
	if s.State() == StateClosed || !identifier.MatchString(name) {
		return nil, false
	}
	if fn, ok := goja.AssertFunction(s.vm.Get(name)); ok {
		return fn, true
	}

	// Top-level let/const bindings are not properties of the global object
	v, err := s.vm.RunString(fmt.Sprintf("typeof %[1]s === 'function' ? %[1]s : undefined", name))
	if err != nil {
		return nil, false
	}
	return goja.AssertFunction(v)
}

// InvokeHandler calls the registered request handler with
// {action, source, info} and waits for its result.
func (s *Session) InvokeHandler(action string, src SourceRef, info map[string]any) (any, error) {
	fn, ok := s.handlers[EventRequest]
	if !ok {
		return nil, &NotSupportedError{Action: action}
	}
	if err := s.usable(); err != nil {
		return nil, err
	}

	payload := s.vm.NewObject()
	_ = payload.Set("action", action)
	_ = payload.Set("source", s.sourceObject(src))
	_ = payload.Set("info", s.toJS(info))
	return s.call(action, fn, payload)
}

// CallExport calls a global function as fn(info, source)
func (s *Session) CallExport(name string, src SourceRef, info map[string]any) (any, error) {
	fn, ok := s.export(name)
	if !ok {
		return nil, &NotSupportedError{Action: name}
	}
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.call(name, fn, s.toJS(info), s.sourceObject(src))
}

func (s *Session) call(action string, fn goja.Callable, args ...goja.Value) (out any, err error) {
	defer s.recoverFault(&err)

	s.phase = phaseInvoke
	s.action = action

	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, s.classify(err, runtimeError)
	}
	v, err = s.await(v)
	if err != nil {
		return nil, err
	}
	out, err = s.decodeJSON(v)
	if err != nil {
		return nil, s.classify(err, runtimeError)
	}
	return out, nil
}

// RunFor processes queued jobs for d, returning early only on a fault
func (s *Session) RunFor(d time.Duration) (err error) {
	defer s.recoverFault(&err)
	if err := s.usable(); err != nil {
		return err
	}

	s.phase = phaseWait
	t := time.NewTimer(d)
	defer t.Stop()

	for {
		ran, err := s.step(t.C)
		if err != nil || !ran {
			return err
		}
	}
}

// Settle processes jobs until the session is idle or max elapses
func (s *Session) Settle(max time.Duration) (err error) {
	defer s.recoverFault(&err)
	if err := s.usable(); err != nil {
		return err
	}

	s.phase = phaseWait
	t := time.NewTimer(max)
	defer t.Stop()

	for !s.loop.idle() {
		ran, err := s.step(t.C)
		if err != nil || !ran {
			return err
		}
	}
	return nil
}

// step runs one job, blocking until a job arrives, the session ends or stop
// fires. It reports false when stop fired first.
func (s *Session) step(stop <-chan time.Time) (bool, error) {
	select {
	case job := <-s.loop.jobs:
		s.jobErr = nil
		job()
		if s.jobErr != nil {
			return true, s.fail(s.jobErr)
		}
		return true, nil
	case <-s.ctx.Done():
		return false, s.fail(s.deadline())
	case <-stop:
		return false, nil
	}
}

func (s *Session) await(v goja.Value) (goja.Value, error) {
	if v == nil {
		return goja.Undefined(), nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}

	for {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result(), nil
		case goja.PromiseStateRejected:
			return nil, &RuntimeError{Message: errorMessage(p.Result())}
		}

		if s.loop.idle() {
			return nil, &RuntimeError{Message: "promise never settled"}
		}
		if _, err := s.step(nil); err != nil {
			return nil, err
		}
	}
}

// callback runs script code from a job. Exceptions are reported the way a
// browser reports an uncaught error; interrupts end the session.
func (s *Session) callback(fn goja.Callable, this goja.Value, args ...goja.Value) {
	if _, err := fn(this, args...); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) || s.ctx.Err() != nil {
			s.jobErr = s.deadline()
			return
		}
		s.log("error", "Uncaught "+exceptionMessage(err))
	}
}

func (s *Session) usable() error {
	switch s.State() {
	case StateClosed:
		return ErrSessionClosed
	case StateFailed:
		if s.fault != nil {
			return s.fault
		}
		return ErrSessionClosed
	}
	if s.ctx.Err() != nil {
		return s.fail(s.deadline())
	}
	return nil
}

func (s *Session) classify(err error, wrap func(string) error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || s.ctx.Err() != nil {
		return s.fail(s.deadline())
	}
	return wrap(exceptionMessage(err))
}

// deadline distinguishes the caller giving up from the session running out
func (s *Session) deadline() error {
	if err := s.parent.Err(); err != nil {
		return fmt.Errorf("sandbox %s: %w", s.phase, err)
	}
	return &TimeoutError{Phase: s.phase, After: s.cfg.SessionTimeout}
}

func (s *Session) fail(err error) error {
	var ie *InitError
	if errors.As(err, &ie) || errors.Is(err, ErrScriptTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if s.fault == nil {
			s.fault = err
		}
		s.setState(StateFailed)
	}
	return err
}

// recoverFault converts panics raised while host code touches script values.
// goja panics with the script's exception when a getter or toString throws;
// that is an ordinary script fault, not a host bug.
func (s *Session) recoverFault(err *error) {
	r := recover()
	if r == nil {
		return
	}
	switch x := r.(type) {
	case *goja.Exception:
		*err = s.classify(x, s.faultFor())
	case *goja.InterruptedError:
		*err = s.classify(x, s.faultFor())
	default:
		s.logger.Error("host panic while running script", zap.Any("panic", r), zap.Stack("stack"))
		*err = &RuntimeError{Message: fmt.Sprintf("internal error: %v", r)}
	}
}

func (s *Session) faultFor() func(string) error {
	if s.phase == phaseEvaluate {
		return func(msg string) error { return s.fail(&InitError{Message: msg}) }
	}
	return runtimeError
}

// Close cancels timers and in-flight requests. It is safe to call twice.
func (s *Session) Close() {
	prev := State(s.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return
	}
	s.cancel()
	s.loop.close()

	if s.metrics != nil {
		op := s.action
		if op == "" {
			op = phaseEvaluate
		}
		s.metrics.SessionClosed(op, s.outcome(prev), time.Since(s.created))
	}
}

func (s *Session) outcome(prev State) string {
	var ie *InitError
	switch {
	case errors.As(s.fault, &ie):
		return "init_error"
	case errors.Is(s.fault, ErrScriptTimeout):
		return "timeout"
	case s.fault != nil:
		return "cancelled"
	case prev == StateFailed:
		return "failed"
	default:
		return "ok"
	}
}

func (s *Session) log(level, msg string) {
	s.consoleMu.Lock()
	if len(s.console) < s.cfg.ConsoleLimit {
		s.console = append(s.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
	}
	s.consoleMu.Unlock()

	s.logger.Debug("script console", zap.String("level", level), zap.String("message", msg))
}

func (s *Session) sourceObject(src SourceRef) *goja.Object {
	if src.Name == "" {
		src.Name = src.ID
	}
	obj := s.vm.NewObject()
	_ = obj.Set("id", src.ID)
	_ = obj.Set("name", src.Name)
	// Scripts written against string platform ids compare source directly
	_ = obj.Set("toString", func(goja.FunctionCall) goja.Value { return s.vm.ToValue(src.ID) })
	return obj
}

// toJS converts Go data into plain script objects and arrays
func (s *Session) toJS(v any) goja.Value {
	if v == nil {
		return goja.Null()
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return s.vm.ToValue(v)
	}
	out, err := s.jsonParse(goja.Undefined(), s.vm.ToValue(string(data)))
	if err != nil {
		return s.vm.ToValue(v)
	}
	return out
}

// exportJSON converts a script value into plain Go data (maps, slices,
// float64, string, bool), dropping functions the way JSON.stringify does.
func (s *Session) exportJSON(v goja.Value) any {
	out, err := s.decodeJSON(v)
	if err != nil {
		return v.Export()
	}
	return out
}

// decodeJSON round-trips v through JSON.stringify. The error is the script's
// own exception from a throwing getter or toJSON.
func (s *Session) decodeJSON(v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	str, err := s.jsonStringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(str) {
		return v.Export(), nil
	}
	var out any
	if err := sonic.UnmarshalString(str.String(), &out); err != nil {
		return v.Export(), nil
	}
	return out, nil
}

func runtimeError(msg string) error { return &RuntimeError{Message: msg} }

func errorMessage(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && m.String() != "" {
			return m.String()
		}
	}
	return v.String()
}

func exceptionMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errorMessage(ex.Value())
	}
	return err.Error()
}

type offline struct{}

func (offline) Do(context.Context, string, network.Options) *network.Response {
	return &network.Response{Headers: map[string]string{}, Error: "network access is disabled"}
}
