package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/motifd/internal/auth"
	"github.com/desertthunder/motifd/internal/shared"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger emits one structured line per request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			started := time.Now()
			next.ServeHTTP(recorder, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"elapsed", time.Since(started),
			)
		})
	}
}

// limiterPool hands out one token bucket per caller+path pair. Entries are
// created lazily and live for the process lifetime; the key space is bounded
// by the configured token set times the route table.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(p.rps, p.burst)
		p.limiters[key] = limiter
	}
	return limiter
}

// RateLimit throttles each caller per path. The caller key is the bearer
// token when present, otherwise the remote host, so unauthenticated probing
// is bounded too. A non-positive rps disables limiting. /health is exempt
// so orchestrator probes never starve.
func RateLimit(rps float64, logger *log.Logger) Middleware {
	pool := &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    int(rps) + 1,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rps <= 0 || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			caller := auth.ParseBearer(r.Header.Get("Authorization"))
			if caller == "" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					caller = host
				} else {
					caller = r.RemoteAddr
				}
			}

			if !pool.get(caller + "|" + r.URL.Path).Allow() {
				if logger != nil {
					logger.Warn("rate limited", "path", r.URL.Path)
				}
				writeError(w, fmt.Errorf("%w: slow down and retry shortly", shared.ErrRateLimited))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
