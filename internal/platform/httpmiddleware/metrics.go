package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"digitals.local/internal/platform/metrics"
)

// routeTemplate 返回 router 会匹配到的路由模板；404/405 时为 UNMATCHED，避免 path 作为 label 造成高基数。
func routeTemplate(router *mux.Router, r *http.Request) string {
	var match mux.RouteMatch
	if router.Match(r, &match) && match.MatchErr == nil && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "UNMATCHED"
}

// Metrics 包在 router 外层，未匹配的请求也会被统计。
func Metrics(router *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()

		rw := wrap(w)
		route := routeTemplate(router, r)
		defer func() {
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}()
		router.ServeHTTP(rw, r)
	})
}
