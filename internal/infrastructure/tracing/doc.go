/*
Package tracing provides lightweight request tracing for the console API and
the outbound collaborator calls it triggers.

# Overview

Every console request gets a trace id (taken from X-Trace-ID when the caller
sent one) and a span. The ids travel in the request context; the collaborator
client copies them onto registry, install-state and data requests so one
catalog sync or uninstall can be followed across services.

# Usage

	tracer := tracing.New("exthost", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Outbound
	headers := map[string]string{}
	tracing.InjectTraceContext(ctx, headers)

Completed spans are logged at debug level, or at warn when they carry an
error. The collector is buffered; spans are dropped rather than blocking a
request when it is full.
*/
package tracing
