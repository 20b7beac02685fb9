package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceName 把 otelhttp 创建的 span 改名为 "METHOD /route/{template}"。
func TraceName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + routeTemplate(r))
		next.ServeHTTP(w, r)
	})
}
