package middleware

import (
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/garrettladley/payhook/internal/xhttp"
)

// CORSConfig controls which browser origins may call the checkout API.
// An origin is allowed when it is listed exactly or matches PreviewPattern.
type CORSConfig struct {
	AllowedOrigins []string
	PreviewPattern *regexp.Regexp
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

func (c CORSConfig) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(c.AllowedOrigins, origin) {
		return true
	}
	return c.PreviewPattern != nil && c.PreviewPattern.MatchString(origin)
}

func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get(xhttp.Origin)
			w.Header().Add(xhttp.Vary, xhttp.Origin)

			ok := cfg.allowed(origin)
			if ok {
				w.Header().Set(xhttp.AccessControlAllowOrigin, origin)
			}

			if r.Method == http.MethodOptions {
				if ok {
					w.Header().Set(xhttp.AccessControlAllowMethods, methods)
					w.Header().Set(xhttp.AccessControlAllowHeaders, headers)
					if cfg.MaxAge > 0 {
						w.Header().Set(xhttp.AccessControlMaxAge, strconv.Itoa(int(cfg.MaxAge.Seconds())))
					}
				}
				xhttp.WriteNoContent(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
