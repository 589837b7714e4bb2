package middleware

import (
	"net/http"
	"net/netip"

	"github.com/garrettladley/payhook/internal/storage"
	"github.com/garrettladley/payhook/internal/xerrors"
	"github.com/garrettladley/payhook/internal/xhttp"
	"github.com/garrettladley/payhook/internal/xslog"
)

// RateLimit applies IP-based rate limiting. Preflight requests pass through
// uncounted. X-Forwarded-For is honored only from trustedProxies.
func RateLimit(limiter storage.RateLimiter, trustedProxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			logger := xslog.FromContext(ctx)
			ip := xhttp.ClientIP(r, trustedProxies)

			result, err := limiter.Allow(ctx, ip)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed",
					xslog.ErrorGroup(err),
					xslog.IP(ip),
				)
				xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("rate limit check failed")))
				return
			}

			if !result.Allowed {
				xerrors.WriteError(ctx, w, xerrors.TooManyRequests(xerrors.WithRetryAfter(result.RetryAfter), xerrors.WithReason("ip_rate_limit")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
