/*
Package tracing provides lightweight request tracing.

Each inbound request gets a trace id (or reuses the caller's X-Trace-ID).
Resolution calls open child spans per source attempt, so a single search
that falls back across three scripts logs as one trace.

	tracer := tracing.New("musichub", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "resolve.musicUrl")
	defer tracer.Finish(span)
	span.SetTag("source", src.ID)

Finished spans are buffered (1000) and written by a collector goroutine at
debug level, or warn level when the span carries an error.
*/
package tracing
