/*
Package sandbox runs untrusted source scripts in isolated goja runtimes.

Each Session owns one VM, one event loop and one deadline. Nothing is shared
between sessions except the Host's network client, so a script can neither
observe nor corrupt another script's globals.

The VM is driven only by the goroutine that created the session. Timers and
bridge requests run in the background and hand their completions back
through the session's job queue:

	timer / HTTP goroutine --enqueue--> jobs --step--> VM

A watchdog interrupts the VM when the session context ends, which bounds
synchronous loops as well as abandoned promises. Errors are typed:

	InitError          evaluation threw
	TimeoutError       session deadline passed (carries the phase)
	RuntimeError       invocation threw, rejected or returned an error payload
	NotSupportedError  no handler or export for the operation

Scripts talk to the host through the lx global: lx.on registers the request
handler, lx.send declares capabilities, lx.request performs HTTP and
lx.utils exposes crypto, buffer and zlib helpers.
*/
package sandbox
