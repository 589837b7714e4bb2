package middleware

import (
	"net/http"

	"github.com/garrettladley/payhook/internal/xcontext"
	"github.com/garrettladley/payhook/internal/xhttp"
	"github.com/google/uuid"
)

// RequestID assigns every request a fresh id, exposed on the context and the
// response header. Inbound ids are ignored since the routes are public.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			ctx := xcontext.SetRequestID(r.Context(), id)
			xhttp.SetHeaderRequestID(w, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
