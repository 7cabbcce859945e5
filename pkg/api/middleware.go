package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cuemby/ipsecd/pkg/metrics"
)

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route and status
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		metrics.APIRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.code)).Inc()
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", path).
			Int("status", rec.code).
			Msg("API request")
	})
}
