package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := c.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ctx := logger.WithContext(r.Context())

		start := c.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		level := logger.Debug()
		if r.URL.Path == "/ws" {
			level = logger.Info()
		}
		level.
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("elapsed", c.clock.Since(start)).
			Msg("request")
	})
}
