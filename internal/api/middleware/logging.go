package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/metrics"
)

// RequestLogger logs every admin API request at Info level and records
// its duration/status in the HTTP metrics, in the same shape chi's own
// middleware.Logger uses but routed through the zerolog logger instead
// of the standard library one.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logger.Get().Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", elapsed).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("request handled")

			metrics.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(status), elapsed.Seconds())
		})
	}
}
