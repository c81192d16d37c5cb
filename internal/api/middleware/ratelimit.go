package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jobboard/server/internal/api/render"
	"github.com/jobboard/server/internal/metrics"
	"github.com/jobboard/server/internal/ratelimit"
)

const rateLimitMessage = "Too many requests, please try again later."

var rateLimitExempt = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

type RateLimitOptions struct {
	TrustedProxyCIDRs []string
	Logger            zerolog.Logger
	Now               func() time.Time
}

// RateLimit counts every request against the client's window before any
// other handler runs. Limiter errors let the request through.
func RateLimit(limiter ratelimit.Limiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	trusted := parseCIDRs(opts.TrustedProxyCIDRs, opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger.With().Str("component", "ratelimit").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimitExempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r, trusted)
			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				metrics.RateLimitErrors.Inc()
				logger.Error().Err(err).Str("client", key).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			reset := strconv.Itoa(int(decision.RetryAfter(now()) / time.Second))
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("RateLimit-Reset", reset)

			if !decision.Allowed {
				metrics.RateLimitRejections.Inc()
				h.Set("Retry-After", reset)
				render.Message(w, r, http.StatusTooManyRequests, rateLimitMessage, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseCIDRs(cidrs []string, logger zerolog.Logger) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, cidr, err := net.ParseCIDR(raw)
		if err != nil {
			logger.Warn().Str("cidr", raw).Err(err).Msg("ignoring invalid trusted proxy CIDR")
			continue
		}
		nets = append(nets, cidr)
	}
	return nets
}

// clientKey is the peer address, or the first forwarded address when the
// peer is a trusted proxy.
func clientKey(r *http.Request, trusted []*net.IPNet) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if !isTrustedProxy(remoteIP, trusted) {
		return remoteIP
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return remoteIP
}

func isTrustedProxy(ip string, trusted []*net.IPNet) bool {
	if len(trusted) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range trusted {
		if cidr.Contains(parsed) {
			return true
		}
	}
	return false
}
