package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/route-playback/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures a request_id is present on the request context, sourcing
// it from the inbound header if provided, and attaches a per-request logger
// annotated with request_id, method and path.
func RequestID(base logging.Logger, next http.Handler) http.Handler {
	if base == nil {
		base = logging.Noop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(RequestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		id := logging.RequestIDFromContext(ctx)
		w.Header().Set(RequestIDHeader, id)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("request_id", id))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
