package httpmiddleware

import (
	"net/http"

	"github.com/google/uuid"
)

// ReqID 沿用上游传入的 X-Request-ID，没有则生成一个，并回写到请求头与响应头。
func ReqID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
