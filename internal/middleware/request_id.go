package middleware

import (
	"log/slog"
	"net/http"

	"escrowledger/internal/logging"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger copies chi's request id into the logging context so engine
// logs carry the same id as the access log.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithLogger(r.Context(), logger)
			if id := chimiddleware.GetReqID(ctx); id != "" {
				ctx = logging.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
