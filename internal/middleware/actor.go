package middleware

import (
	"net/http"

	"github.com/rpattn/rentalvc/internal/auth"
)

// ActorMiddleware stores the X-Actor header value in the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(auth.ActorHeader); actor != "" {
			r = r.WithContext(auth.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
