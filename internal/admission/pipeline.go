package admission

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/stats"
	"shortlink/internal/util"
)

// Authenticator resolves a bearer token to a request identity. It never
// returns an error: resolution failures degrade to the guest context.
type Authenticator interface {
	Resolve(ctx context.Context, token string) RequestContext
}

// Pipeline runs every inbound request through rate check, auth
// resolution and usage recording before dispatch. Rejection at the rate
// check is immediate and final; the later stages never fail a request.
type Pipeline struct {
	limiter *RateLimiter
	auth    Authenticator
	sink    stats.Sink
	logger  *zap.Logger
}

func NewPipeline(limiter *RateLimiter, auth Authenticator, sink stats.Sink, logger *zap.Logger) *Pipeline {
	if sink == nil {
		sink = stats.NopSink{}
	}
	return &Pipeline{
		limiter: limiter,
		auth:    auth,
		sink:    sink,
		logger:  logger,
	}
}

// Middleware is the chi middleware form of the pipeline.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)

		if !p.limiter.Admit(clientIP) {
			p.logger.Debug("request rejected by rate limiter",
				util.String("client_ip", clientIP),
				util.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded, slow down"}`))
			return
		}

		rc := p.auth.Resolve(r.Context(), BearerToken(r))

		p.sink.Record(stats.Event{
			Path:     r.URL.Path,
			Method:   r.Method,
			ClientIP: clientIP,
			At:       time.Now(),
		})

		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}

// BearerToken extracts the token from the Authorization header, or ""
// when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

// ClientIP returns the request's client address without the port. It runs
// after chi's RealIP middleware, so RemoteAddr may already be a bare IP.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
