package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
)

func stack(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])

	var b strings.Builder
	b.WriteString(message + "\nTraceback:")
	for _, pc := range pcs[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		fmt.Fprintf(&b, "\n\t%s:%d", file, line)
	}
	return b.String()
}

// Recovery 捕获 handler 中的 panic，记录堆栈并返回 500（响应尚未写出时）。
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrap(w)
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("panic recovered",
					"request_id", r.Header.Get(RequestIDHeader),
					"method", r.Method,
					"path", redactPath(r.URL.Path),
					"panic", err,
					"stack", stack(fmt.Sprintf("%v", err)),
				)
				if rw.wroteHeader {
					return
				}
				WriteError(rw, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
