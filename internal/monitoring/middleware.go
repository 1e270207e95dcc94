package monitoring

import (
	"net/http"

	"github.com/ignite/signup-portal/internal/pkg/logger"
)

// Recoverer reports handler panics through CaptureException and answers 500.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic recovered", "method", r.Method, "path", r.URL.Path, "panic", rec)
			CaptureException(rec)
			w.WriteHeader(http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
