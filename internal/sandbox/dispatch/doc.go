// Package dispatch presents one invoke call over the two ways scripts
// expose operations: a handler registered with lx.on('request') that
// receives {action, source, info}, or a global function called as
// fn(info, source).
//
// Operation names are translated through a fixed action table. Because
// scripts may register their handler after async setup, Probe polls the
// session with a bounded, optionally backed-off wait before falling back to
// the export or reporting the operation unsupported.
package dispatch
