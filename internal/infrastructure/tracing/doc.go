/*
Package tracing provides lightweight request tracing.

Each HTTP request gets a span. The trace id comes from the caller's
X-Trace-ID header or is generated, and both ids are echoed in the response so
a client can quote them when reporting a failed exchange. Finished spans are
logged through zap by a single collector goroutine; Close flushes it.

# Usage

	tracer := tracing.New("chatbridge", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "session.start")
	defer func() { span.Finish(); tracer.Submit(span) }()

Handlers that resolve a session store its id under the "session_id" gin key;
the middleware copies it onto the span.
*/
package tracing
