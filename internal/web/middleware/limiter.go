package middleware

import (
	"net/http"
)

// Limiter bounds concurrent request handling. Up to maxInflight requests
// run at once, up to queueSize more wait for a slot, and the rest are shed
// with a 503. Task admission itself stays non-blocking; the worker lock
// decides that.
type Limiter struct {
	admitted chan struct{} // waiting + running
	inflight chan struct{} // running
}

func NewLimiter(queueSize, maxInflight int) *Limiter {
	return &Limiter{
		admitted: make(chan struct{}, queueSize+maxInflight),
		inflight: make(chan struct{}, maxInflight),
	}
}

func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case l.admitted <- struct{}{}:
		default:
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		defer func() { <-l.admitted }()

		select {
		case l.inflight <- struct{}{}:
		case <-r.Context().Done():
			http.Error(w, "request canceled or timed out", http.StatusGatewayTimeout)
			return
		}
		defer func() { <-l.inflight }()

		next.ServeHTTP(w, r)
	})
}
