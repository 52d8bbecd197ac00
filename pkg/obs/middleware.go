package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// responseWriter captures the status code so metrics/tracing can record it
// after the handler returns.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the embedded ResponseWriter's Flusher, when it has
// one, so SSE writers downstream of this middleware (pkg/transport/sse)
// can still type-assert their way to a working http.Flusher.
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the embedded ResponseWriter for callers that type-assert
// via errors.As-style unwrapping (e.g. http.ResponseController).
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// HTTPMiddleware records a span and, when metrics is non-nil, a counter
// and duration histogram per request. The route label uses chi's matched
// pattern (e.g. "/v1/tasks/{id}") rather than the raw path, so metrics
// don't fan out per task id.
func HTTPMiddleware(tracerName string, metrics *Metrics) func(http.Handler) http.Handler {
	tracer := Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := tracer.Start(r.Context(), "http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.path", r.URL.Path),
				),
			)
			defer span.End()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)
			span.SetAttributes(attribute.Int("http.status_code", wrapped.statusCode))

			if metrics == nil {
				return
			}
			routePattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				routePattern = rc.RoutePattern()
			}
			attrs := []attribute.KeyValue{
				attribute.String("method", r.Method),
				attribute.String("route", routePattern),
				attribute.String("status", strconv.Itoa(wrapped.statusCode)),
			}
			metrics.requestsTotal.Add(r.Context(), 1, metric.WithAttributes(attrs...))
			metrics.requestDuration.Record(r.Context(), duration.Seconds(), metric.WithAttributes(attrs...))
		})
	}
}
