package middleware

import (
	"net/http"

	"github.com/ebogdum/davgate/metrics"
	"github.com/ebogdum/davgate/session"
)

// UnitOfWork opens a session slot for the duration of one request. The slot
// is cleared when the request ends, whatever the outcome, so nothing
// authenticated for this request is visible to the next one.
func UnitOfWork(cache *session.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, end := cache.Begin(r.Context())
			metrics.ActiveUnitsOfWork.Inc()
			defer func() {
				end()
				metrics.ActiveUnitsOfWork.Dec()
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
