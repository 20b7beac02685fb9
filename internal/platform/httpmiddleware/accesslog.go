package httpmiddleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AccessLog 每个请求一条结构化日志。/d/ 下的路径含 secret，只记录前缀。
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)

		next.ServeHTTP(rw, r)

		slog.Info("access",
			"request_id", r.Header.Get(RequestIDHeader),
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"status", rw.status,
			"bytes", rw.size,
			"latency_ms", time.Since(start).Milliseconds())
	})
}

func redactPath(p string) string {
	if strings.HasPrefix(p, "/d/") {
		return "/d/:secret"
	}
	return p
}
